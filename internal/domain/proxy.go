package domain

// ProxySite is one public hostname routed by the reverse proxy to an
// upstream reachable over the managed network.
type ProxySite struct {
	FQDN     string
	Upstream string // host:port
}
