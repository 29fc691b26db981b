package cancel

import (
	"os"
	"os/signal"
	"syscall"
)

// NotifySignals wires OS interrupt handling to the token. The first
// SIGINT/SIGTERM cancels the token so in-flight work can finish cleanly; a
// second signal calls force (typically: flush and close the ledger, then
// exit 130). The returned stop function releases the signal handler.
func NotifySignals(token *Token, force func()) (stop func()) {
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	quit := make(chan struct{})

	go func() {
		seen := 0
		for {
			select {
			case sig := <-sigCh:
				seen++
				if seen == 1 {
					token.Cancel(sig.String())
					continue
				}
				if force != nil {
					force()
				}
				return
			case <-quit:
				return
			}
		}
	}()

	return func() {
		signal.Stop(sigCh)
		close(quit)
	}
}
