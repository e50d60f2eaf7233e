package printer

import (
	"context"
	"strings"
	"sync"

	"github.com/grandcat/zeroconf"
)

var mdnsServiceTypes = []string{"_ipp._tcp", "_ipps._tcp", "_printer._tcp"}

// discoverNetworkPrinters browses mDNS/Bonjour for network printers
// advertising IPP or LPD service types, bounded by ctx's deadline. Errors
// from the resolver or an individual browse are absorbed; a printer with
// no readable instance name is skipped.
func discoverNetworkPrinters(ctx context.Context, logger Logger) []Info {
	var (
		mu    sync.Mutex
		found []Info
		wg    sync.WaitGroup
	)

	for _, svcType := range mdnsServiceTypes {
		svcType := svcType
		wg.Add(1)
		go func() {
			defer wg.Done()

			resolver, err := zeroconf.NewResolver(nil)
			if err != nil {
				logger.Debug("mDNS resolver init failed", "error", err)
				return
			}

			entries := make(chan *zeroconf.ServiceEntry, 8)
			done := make(chan struct{})
			go func() {
				defer close(done)
				for entry := range entries {
					name := strings.TrimSpace(entry.Instance)
					if name == "" {
						continue
					}
					mu.Lock()
					found = append(found, Info{
						Name:        name,
						DisplayName: name,
						Description: "network (" + svcType + ")",
					})
					mu.Unlock()
				}
			}()

			if err := resolver.Browse(ctx, svcType, "local.", entries); err != nil {
				logger.Debug("mDNS browse failed", "service", svcType, "error", err)
			}
			<-done
		}()
	}

	wg.Wait()
	return found
}
