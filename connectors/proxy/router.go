package proxy

import (
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const DefaultStreamPort = "8888"

var ErrRuleConflict = errors.New("proxy rule is already installed with another target")

// Rules describes the two prefixes installed for a session.
// /<Name>/proxy/ is forwarded to ProxyTarget and /<Name>/stream/ to StreamTarget.
type Rules struct {
	Name         string
	ProxyTarget  *url.URL
	StreamTarget *url.URL
}

func (r Rules) ProxyPrefix() string {
	return "/" + r.Name + "/proxy/"
}

func (r Rules) StreamPrefix() string {
	return "/" + r.Name + "/stream/"
}

type rule struct {
	prefix  string
	target  *url.URL
	handler http.Handler
	owners  map[string]struct{}
}

// Router forwards requests matching installed prefixes to upstream targets with the prefix stripped.
// Rules can be installed and removed while the router is serving.
type Router struct {
	mux      sync.RWMutex
	rules    map[string]*rule    // keyed by prefix
	sessions map[string][]string // session id -> prefixes owned by the session
}

func NewRouter() *Router {
	return &Router{rules: map[string]*rule{}, sessions: map[string][]string{}}
}

// Install registers proxy and stream rules for the session. Installing the same session twice is a no-op.
// If another session already owns a prefix with a different target the existing rule is kept
// and ErrRuleConflict is returned.
func (rt *Router) Install(sessionID string, rules Rules) error {
	if rules.Name == "" || rules.ProxyTarget == nil || rules.StreamTarget == nil {
		return errors.New("incomplete proxy rules")
	}
	rt.mux.Lock()
	defer rt.mux.Unlock()
	if _, ok := rt.sessions[sessionID]; ok {
		return nil
	}

	var conflicts []string
	owned := []string{}
	for prefix, target := range map[string]*url.URL{rules.ProxyPrefix(): rules.ProxyTarget, rules.StreamPrefix(): rules.StreamTarget} {
		existing, ok := rt.rules[prefix]
		if !ok {
			log.Infof("Installing proxy rule %s -> %s", prefix, target.String())
			rt.rules[prefix] = &rule{
				prefix:  prefix,
				target:  target,
				handler: newReverseProxy(prefix, target),
				owners:  map[string]struct{}{sessionID: {}},
			}
			owned = append(owned, prefix)
			continue
		}
		if existing.target.String() != target.String() {
			conflicts = append(conflicts, prefix+" -> "+existing.target.String())
			continue
		}
		existing.owners[sessionID] = struct{}{}
		owned = append(owned, prefix)
	}
	rt.sessions[sessionID] = owned

	if len(conflicts) > 0 {
		sort.Strings(conflicts)
		return errors.Wrap(ErrRuleConflict, strings.Join(conflicts, ", "))
	}
	return nil
}

// Uninstall releases rules owned by the session, rules without owners are removed.
func (rt *Router) Uninstall(sessionID string) {
	rt.mux.Lock()
	defer rt.mux.Unlock()
	for _, prefix := range rt.sessions[sessionID] {
		r, ok := rt.rules[prefix]
		if !ok {
			continue
		}
		delete(r.owners, sessionID)
		if len(r.owners) == 0 {
			log.Infof("Removing proxy rule %s", prefix)
			delete(rt.rules, prefix)
		}
	}
	delete(rt.sessions, sessionID)
}

// Prefixes returns installed prefixes in lexical order.
func (rt *Router) Prefixes() []string {
	rt.mux.RLock()
	defer rt.mux.RUnlock()
	prefixes := make([]string, 0, len(rt.rules))
	for prefix := range rt.rules {
		prefixes = append(prefixes, prefix)
	}
	sort.Strings(prefixes)
	return prefixes
}

func (rt *Router) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	handler := rt.match(r.URL.Path)
	if handler == nil {
		http.NotFound(w, r)
		return
	}
	handler.ServeHTTP(w, r)
}

// match returns handler of the longest installed prefix matching path.
func (rt *Router) match(path string) http.Handler {
	rt.mux.RLock()
	defer rt.mux.RUnlock()
	var best *rule
	for prefix, r := range rt.rules {
		if strings.HasPrefix(path, prefix) && (best == nil || len(prefix) > len(best.prefix)) {
			best = r
		}
	}
	if best == nil {
		return nil
	}
	return best.handler
}

func newReverseProxy(prefix string, target *url.URL) *httputil.ReverseProxy {
	return &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.Out.URL.Path = "/" + strings.TrimPrefix(pr.In.URL.Path, prefix)
			pr.Out.URL.RawPath = ""
			pr.SetURL(target)
			pr.SetXForwarded()
		},
		ModifyResponse: func(resp *http.Response) error {
			setNoCache(resp.Header)
			return nil
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			log.Errorf("Proxy request %s to %s failed. Error : %s", r.URL.Path, target.String(), err.Error())
			setNoCache(w.Header())
			w.WriteHeader(http.StatusBadGateway)
		},
	}
}

// setNoCache mirrors the headers of the nocache middleware and drops entity tags.
func setNoCache(h http.Header) {
	h.Set("Cache-Control", "no-store, no-cache, must-revalidate, proxy-revalidate")
	h.Set("Pragma", "no-cache")
	h.Set("Expires", "0")
	h.Set("Surrogate-Control", "no-store")
	h.Del("ETag")
}

// ParseTarget builds an upstream url from a bridge host and port. A host without scheme is treated as http.
func ParseTarget(host, port string) (*url.URL, error) {
	host = strings.TrimSpace(host)
	if host == "" {
		return nil, errors.New("empty target host")
	}
	if !strings.Contains(host, "://") {
		host = "http://" + host
	}
	u, err := url.Parse(host)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid target host %s", host)
	}
	if u.Hostname() == "" {
		return nil, errors.Errorf("invalid target host %s", host)
	}
	if port != "" {
		u.Host = net.JoinHostPort(u.Hostname(), port)
	}
	u.Path = strings.TrimSuffix(u.Path, "/")
	return u, nil
}
