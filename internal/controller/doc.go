// Package controller talks to the HTTP API of a supervised proxy.
//
// Every call first checks that the TCP port accepts connections, then
// issues a single HTTP request. The client never retries; the health
// monitor calls again on its next cycle.
//
// Usage:
//
//	client := controller.NewClient(cfg.Controller)
//	res := client.ProbeLiveness(ctx, d.Host, d.Port)
//	if res.Outcome == controller.OutcomeOK {
//	    res = client.RequestStart(ctx, d)
//	}
package controller
