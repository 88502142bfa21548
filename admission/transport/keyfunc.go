package transport

import (
	"net"
	"net/http"
	"strings"

	"blockslot/admission/domain"
)

// KeyFunc extrai a origem de um pedido para o rate limit.
type KeyFunc func(r *http.Request) domain.Key

// DefaultKeyFunc: header configurado > primeiro IP do X-Forwarded-For (se confiável)
// > host do RemoteAddr.
func DefaultKeyFunc(keyHeader string, trustXFF bool) KeyFunc {
	return func(r *http.Request) domain.Key {
		if keyHeader != "" {
			if v := strings.TrimSpace(r.Header.Get(keyHeader)); v != "" {
				return domain.Key(v)
			}
		}

		if trustXFF {
			if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
				first, _, _ := strings.Cut(xff, ",")
				if ip := strings.TrimSpace(first); ip != "" {
					return domain.Key(ip)
				}
			}
		}

		addr := strings.TrimSpace(r.RemoteAddr)
		if host, _, err := net.SplitHostPort(addr); err == nil && host != "" {
			return domain.Key(host)
		}
		if addr != "" {
			return domain.Key(addr)
		}
		return "unknown"
	}
}
