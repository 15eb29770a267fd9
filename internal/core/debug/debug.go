package debug

import (
	"net/http"
	_ "net/http/pprof"

	"github.com/davecgh/go-spew/spew"
	"github.com/sirupsen/logrus"
)

// Direction of a frame relative to the server.
const (
	Inbound  = "client->server"
	Outbound = "server->client"
)

// StartPprofServer starts the default pprof HTTP server that can be accessed via
// localhost to get runtime information about the server. See https://golang.org/pkg/net/http/pprof/
func StartPprofServer(logger *logrus.Logger, addr string) {
	logger.Infof("starting pprof server on %s", addr)

	go func() {
		if err := http.ListenAndServe(addr, nil); err != nil {
			logger.Infof("error starting pprof server: %s", err)
		}
	}()
}

// FrameDump renders the raw bytes of a frame as a hex dump.
func FrameDump(text string) string {
	return spew.Sdump([]byte(text))
}

// LogFrame writes a frame to the logger at debug level.
func LogFrame(logger logrus.FieldLogger, direction, text string) {
	logger.WithField("direction", direction).Debugf("frame (%d bytes):\n%s", len(text), FrameDump(text))
}
