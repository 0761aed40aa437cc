package middleware

import (
	"log/slog"
	"net"

	"github.com/labstack/echo/v4"
)

// TrustedProxies configures c.RealIP() to honour X-Forwarded-For only when
// the direct peer is inside one of trustedCIDRs. With no CIDRs the peer
// address is used as is. Invalid CIDRs are logged and skipped.
func TrustedProxies(e *echo.Echo, trustedCIDRs []string) {
	if len(trustedCIDRs) == 0 {
		e.IPExtractor = echo.ExtractIPDirect()
		return
	}

	opts := []echo.TrustOption{
		// Only the listed ranges count; drop Echo's loopback/private defaults.
		echo.TrustLoopback(false),
		echo.TrustLinkLocal(false),
		echo.TrustPrivateNet(false),
	}
	for _, cidr := range trustedCIDRs {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			slog.Warn("ignoring invalid trusted proxy CIDR", slog.String("cidr", cidr))
			continue
		}
		opts = append(opts, echo.TrustIPRange(network))
	}
	e.IPExtractor = echo.ExtractIPFromXFFHeader(opts...)
}
