// Package routing compiles per-service route intents into the single
// ordered routing table the reverse proxy applies.
package routing

import (
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"convoy/internal/core"
)

// Compiler turns route intents into a routing table. securePort is the
// externally visible TLS port that auto-inserted redirects point at.
type Compiler struct {
	securePort int
	log        zerolog.Logger
}

// NewCompiler creates a route compiler.
func NewCompiler(securePort int, logger zerolog.Logger) *Compiler {
	return &Compiler{
		securePort: securePort,
		log:        logger.With().Str("component", "routing").Logger(),
	}
}

type claim struct {
	prefix string
	secure *core.RouteIntent
	plain  *core.RouteIntent
}

// Compile builds the routing table from the route intents of the given
// services. The output is deterministic: compiling an unchanged intent set
// yields an identical table.
//
// Rules, in order:
//   - every middleware name must be known;
//   - no two intents may claim the same (entrypoint, prefix) pair;
//   - for a prefix with both a secure and a plain intent, the secure row
//     comes first and the plain row gets a redirect-to-secure middleware
//     prepended to its chain;
//   - longer prefixes sort before shorter ones so the proxy's first-match
//     evaluation sees the more specific rule first.
func (c *Compiler) Compile(services []*core.Service) (*core.RoutingTable, error) {
	byService := make(map[string]*core.Service, len(services))
	var intents []core.RouteIntent
	for _, svc := range services {
		byService[svc.Name] = svc
		intents = append(intents, svc.Routes...)
	}

	var bad []string
	for _, intent := range intents {
		for _, mw := range intent.Middlewares {
			if !knownMiddleware(mw) {
				bad = append(bad, intent.Service+": unknown middleware "+mw)
			}
		}
		if svc := byService[intent.Service]; svc != nil && svc.Port == 0 {
			bad = append(bad, intent.Service+": routed service declares no port")
		}
	}
	if len(bad) > 0 {
		return nil, &core.ConfigError{Reason: "invalid route intent", Names: bad}
	}

	claims := make(map[string]*claim)
	for i := range intents {
		intent := &intents[i]
		cl := claims[intent.PathPrefix]
		if cl == nil {
			cl = &claim{prefix: intent.PathPrefix}
			claims[intent.PathPrefix] = cl
		}
		slot := &cl.plain
		if intent.Secure {
			slot = &cl.secure
		}
		if *slot != nil {
			// Ambiguous ownership is a defect, not a last-write-wins.
			owners := []string{(*slot).Service, intent.Service}
			sort.Strings(owners)
			return nil, &core.RouteConflictError{
				Entrypoint: entrypointFor(intent.Secure),
				PathPrefix: intent.PathPrefix,
				Services:   owners,
			}
		}
		*slot = intent
	}

	ordered := make([]*claim, 0, len(claims))
	for _, cl := range claims {
		ordered = append(ordered, cl)
	}
	sort.Slice(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if len(a.prefix) != len(b.prefix) {
			return len(a.prefix) > len(b.prefix)
		}
		if pa, pb := a.priority(), b.priority(); pa != pb {
			return pa > pb
		}
		return a.prefix < b.prefix
	})

	table := &core.RoutingTable{SecurePort: c.securePort}
	for _, cl := range ordered {
		if cl.secure != nil {
			table.Rows = append(table.Rows, c.row(cl.secure, byService, false))
		}
		if cl.plain != nil {
			table.Rows = append(table.Rows, c.row(cl.plain, byService, cl.secure != nil))
		}
	}

	c.log.Debug().Int("rows", len(table.Rows)).Msg("routing table compiled")
	return table, nil
}

// row materializes one intent. redirect asks for a redirect-to-secure
// middleware at the head of the chain; explicitly declared middlewares keep
// their declaration order after it.
func (c *Compiler) row(intent *core.RouteIntent, services map[string]*core.Service, redirect bool) core.Row {
	chain := make([]string, 0, len(intent.Middlewares)+1)
	if redirect {
		chain = append(chain, core.MiddlewareRedirectToSecure)
	}
	for _, mw := range intent.Middlewares {
		if redirect && mw == core.MiddlewareRedirectToSecure {
			continue // already at the head of the chain
		}
		chain = append(chain, mw)
	}

	svc := services[intent.Service]
	return core.Row{
		Entrypoint:  entrypointFor(intent.Secure),
		PathPrefix:  intent.PathPrefix,
		Service:     intent.Service,
		Target:      core.Endpoint{Host: svc.Name, Port: svc.Port},
		Middlewares: chain,
	}
}

// priority is the claim's tie-break weight among equal-length prefixes.
func (cl *claim) priority() int {
	p := 0
	if cl.secure != nil && cl.secure.Priority > p {
		p = cl.secure.Priority
	}
	if cl.plain != nil && cl.plain.Priority > p {
		p = cl.plain.Priority
	}
	return p
}

func entrypointFor(secure bool) string {
	if secure {
		return core.EntrypointHTTPS
	}
	return core.EntrypointHTTP
}

// knownMiddleware accepts the supported middleware names, with an optional
// ":n" argument on body-size-limit.
func knownMiddleware(name string) bool {
	switch {
	case name == core.MiddlewareStripPrefix,
		name == core.MiddlewareRedirectToSecure,
		name == core.MiddlewareBodySizeLimit:
		return true
	case strings.HasPrefix(name, core.MiddlewareBodySizeLimit+":"):
		return len(name) > len(core.MiddlewareBodySizeLimit)+1
	}
	return false
}
