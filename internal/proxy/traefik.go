// Package proxy renders a compiled routing table into traefik dynamic
// configuration and hands it to the proxy by (atomically) writing its
// watched config file.
package proxy

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"convoy/internal/core"
)

// defaultBodyLimit applies when body-size-limit is declared without an
// explicit byte count.
const defaultBodyLimit = 10 << 20

// FileApplier writes traefik dynamic configuration to a file the proxy
// watches.
type FileApplier struct {
	path string
	log  zerolog.Logger
}

// NewFileApplier creates an applier writing to path.
func NewFileApplier(path string, logger zerolog.Logger) *FileApplier {
	return &FileApplier{
		path: path,
		log:  logger.With().Str("component", "proxy").Logger(),
	}
}

// Apply renders the table and atomically replaces the proxy's config file.
func (a *FileApplier) Apply(ctx context.Context, table *core.RoutingTable) error {
	data, err := Render(table)
	if err != nil {
		return fmt.Errorf("failed to render proxy config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(a.path), 0o755); err != nil {
		return fmt.Errorf("failed to create proxy config dir: %w", err)
	}
	tmp := a.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write proxy config: %w", err)
	}
	if err := os.Rename(tmp, a.path); err != nil {
		return fmt.Errorf("failed to replace proxy config: %w", err)
	}

	a.log.Info().Str("path", a.path).Int("rows", len(table.Rows)).Msg("proxy configuration applied")
	return nil
}

// Render produces the traefik dynamic-config YAML for a routing table. The
// document is built from explicitly ordered nodes, so rendering an unchanged
// table yields byte-identical output. Row order is additionally encoded as
// descending router priorities, so traefik's own rule sorting can never
// disagree with the compiled order.
func Render(table *core.RoutingTable) ([]byte, error) {
	routers := mapNode()
	middlewares := mapNode()
	defined := map[string]bool{}

	// Distinct prefixes can sanitize to the same string (/a/b vs /a-b), and
	// duplicate mapping keys would make the proxy drop or reject one of the
	// rows the compiler certified as unambiguous. Disambiguate by table
	// position; base names always end in the entrypoint, renamed ones in a
	// digit, so the suffix cannot itself collide.
	names := make([]string, len(table.Rows))
	used := map[string]bool{}
	for i, row := range table.Rows {
		name := routerName(row)
		if used[name] {
			name = fmt.Sprintf("%s-%d", name, i)
		}
		used[name] = true
		names[i] = name
	}

	for i, row := range table.Rows {
		name := names[i]
		priority := 100 * (len(table.Rows) - i)

		var chain []string
		for _, mw := range row.Middlewares {
			mwName := name + "-" + sanitize(mw)
			chain = append(chain, mwName)
			if !defined[mwName] {
				defined[mwName] = true
				appendPair(middlewares, mwName, middlewareNode(mw, row, table.SecurePort))
			}
		}

		router := mapNode()
		appendPair(router, "rule", strNode(fmt.Sprintf("PathPrefix(`%s`)", row.PathPrefix)))
		appendPair(router, "entryPoints", seqNode(strNode(row.Entrypoint)))
		appendPair(router, "priority", intNode(priority))
		appendPair(router, "service", strNode(row.Service))
		if len(chain) > 0 {
			items := make([]*yaml.Node, len(chain))
			for j, mwName := range chain {
				items[j] = strNode(mwName)
			}
			appendPair(router, "middlewares", seqNode(items...))
		}
		if row.Entrypoint == core.EntrypointHTTPS {
			appendPair(router, "tls", emptyMapNode())
		}
		appendPair(routers, name, router)
	}

	services := mapNode()
	for _, name := range serviceNames(table) {
		target := targetOf(table, name)
		server := mapNode()
		appendPair(server, "url", strNode("http://"+target.Address()))
		lb := mapNode()
		appendPair(lb, "servers", seqNode(server))
		svc := mapNode()
		appendPair(svc, "loadBalancer", lb)
		appendPair(services, name, svc)
	}

	http := mapNode()
	appendPair(http, "routers", routers)
	appendPair(http, "middlewares", middlewares)
	appendPair(http, "services", services)
	root := mapNode()
	appendPair(root, "http", http)

	return yaml.Marshal(root)
}

// middlewareNode builds the definition for one middleware reference.
func middlewareNode(mw string, row core.Row, securePort int) *yaml.Node {
	def := mapNode()
	switch {
	case mw == core.MiddlewareStripPrefix:
		inner := mapNode()
		appendPair(inner, "prefixes", seqNode(strNode(row.PathPrefix)))
		appendPair(def, "stripPrefix", inner)
	case mw == core.MiddlewareRedirectToSecure:
		inner := mapNode()
		appendPair(inner, "scheme", strNode("https"))
		appendPair(inner, "port", quotedNode(strconv.Itoa(securePort)))
		appendPair(inner, "permanent", boolNode(true))
		appendPair(def, "redirectScheme", inner)
	case mw == core.MiddlewareBodySizeLimit || strings.HasPrefix(mw, core.MiddlewareBodySizeLimit+":"):
		limit := defaultBodyLimit
		if arg, ok := strings.CutPrefix(mw, core.MiddlewareBodySizeLimit+":"); ok {
			if parsed, err := strconv.Atoi(arg); err == nil {
				limit = parsed
			}
		}
		inner := mapNode()
		appendPair(inner, "maxRequestBodyBytes", intNode(limit))
		appendPair(def, "buffering", inner)
	}
	return def
}

func routerName(row core.Row) string {
	prefix := strings.Trim(row.PathPrefix, "/")
	if prefix == "" {
		prefix = "root"
	}
	return sanitize(prefix) + "-" + row.Entrypoint
}

func sanitize(s string) string {
	s = strings.ReplaceAll(s, "/", "-")
	return strings.ReplaceAll(s, ":", "-")
}

// serviceNames returns the distinct routed services in name order.
func serviceNames(table *core.RoutingTable) []string {
	seen := map[string]bool{}
	var names []string
	for _, row := range table.Rows {
		if !seen[row.Service] {
			seen[row.Service] = true
			names = append(names, row.Service)
		}
	}
	sort.Strings(names)
	return names
}

func targetOf(table *core.RoutingTable, service string) core.Endpoint {
	for _, row := range table.Rows {
		if row.Service == service {
			return row.Target
		}
	}
	return core.Endpoint{}
}

// yaml.Node helpers: mapping nodes keep insertion order, which is what makes
// the rendered document reproducible.

func mapNode() *yaml.Node {
	return &yaml.Node{Kind: yaml.MappingNode}
}

func emptyMapNode() *yaml.Node {
	return &yaml.Node{Kind: yaml.MappingNode, Style: yaml.FlowStyle}
}

func seqNode(items ...*yaml.Node) *yaml.Node {
	return &yaml.Node{Kind: yaml.SequenceNode, Content: items}
}

func strNode(s string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Value: s}
}

func quotedNode(s string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Style: yaml.DoubleQuotedStyle, Value: s}
}

func intNode(i int) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!int", Value: strconv.Itoa(i)}
}

func boolNode(b bool) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!bool", Value: strconv.FormatBool(b)}
}

func appendPair(m *yaml.Node, key string, value *yaml.Node) {
	m.Content = append(m.Content, strNode(key), value)
}
