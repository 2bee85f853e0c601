package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/gookit/color"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/suite"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
)

// BaseHubSuite talks to a running hub over REST, websocket and the admin
// gRPC port. The suite is skipped when HUB_HTTP_ADDR is not set.
type BaseHubSuite struct {
	suite.Suite
	Config Config
	http   *http.Client
}

// SetupSuite loads the environment configuration before running tests
func (s *BaseHubSuite) SetupSuite() {
	var err error
	s.Config, err = LoadConfig()
	s.Require().NoError(err)
	if s.Config.HubHTTPAddr == "" {
		s.T().Skip("HUB_HTTP_ADDR not set, skipping e2e suite")
	}
	s.http = &http.Client{Timeout: s.Config.Timeout}
}

// Step prints a colorized header for a scenario step in logs
func (s *BaseHubSuite) Step(t *testing.T, name string) {
	header := fmt.Sprintf("  ====== %s ======", name)
	if s.Config.Colours {
		header = color.New(color.BgBlack, color.FgGreen).Render(header)
	}
	t.Log(header)
}

// Call sends a JSON request to the REST API and decodes the answer into out.
func (s *BaseHubSuite) Call(method, path, token string, body, out any) int {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		s.Require().NoError(err)
		reader = bytes.NewReader(raw)
	}
	request, err := http.NewRequest(method, "http://"+s.Config.HubHTTPAddr+path, reader)
	s.Require().NoError(err)
	request.Header.Set("Content-Type", "application/json")
	if token != "" {
		request.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	response, err := s.http.Do(request)
	s.Require().NoError(err)
	defer response.Body.Close()
	raw, err := io.ReadAll(response.Body)
	s.Require().NoError(err)

	s.T().Logf("HTTP %s %s [%d] in %v", method, path, response.StatusCode, time.Since(start))
	if s.Config.DebugJSON {
		s.T().Logf("RESPONSE:\n%s", raw)
	}
	if out != nil && len(raw) > 0 {
		s.Require().NoError(json.Unmarshal(raw, out))
	}
	return response.StatusCode
}

// Socket is a websocket client speaking the hub envelope.
type Socket struct {
	s    *BaseHubSuite
	conn *websocket.Conn
}

type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

func (s *BaseHubSuite) Dial() *Socket {
	conn, _, err := websocket.DefaultDialer.Dial("ws://"+s.Config.HubHTTPAddr+"/ws", nil)
	s.Require().NoError(err, "Failed to open websocket at "+s.Config.HubHTTPAddr)
	return &Socket{s: s, conn: conn}
}

func (w *Socket) Emit(name string, data any) {
	raw, err := json.Marshal(data)
	w.s.Require().NoError(err)
	w.s.Require().NoError(w.conn.WriteJSON(frame{Event: name, Data: raw}))
}

// Await reads frames until one named name arrives and decodes its data.
func (w *Socket) Await(name string, out any) {
	w.s.Require().NoError(w.conn.SetReadDeadline(time.Now().Add(w.s.Config.Timeout)))
	for {
		var f frame
		w.s.Require().NoError(w.conn.ReadJSON(&f), "waiting for "+name)
		if w.s.Config.DebugJSON {
			w.s.T().Logf("WS <- %s %s", f.Event, f.Data)
		}
		if f.Event != name {
			continue
		}
		if out != nil {
			w.s.Require().NoError(json.Unmarshal(f.Data, out))
		}
		return
	}
}

func (w *Socket) Close() {
	_ = w.conn.Close()
}

// GrpcConn opens the admin connection with a logging interceptor.
func (s *BaseHubSuite) GrpcConn() *grpc.ClientConn {
	conn, err := grpc.NewClient(s.Config.HubGrpcAddr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(func(ctx context.Context, method string, req, reply interface{}, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
			start := time.Now()
			err := invoker(ctx, method, req, reply, cc, opts...)
			s.T().Logf("GRPC %s [%s] in %v", method, status.Code(err), time.Since(start))
			return err
		}),
	)
	s.Require().NoError(err, "Failed to connect to gRPC server at "+s.Config.HubGrpcAddr)
	return conn
}
