package server_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	server "github.com/bhoriuchi/graphql-ws-server"
	"github.com/bhoriuchi/graphql-ws-server/auth"
	"github.com/bhoriuchi/graphql-ws-server/gqlclient"
	"github.com/bhoriuchi/graphql-ws-server/ws/protocol"
	"github.com/bhoriuchi/graphql-ws-server/ws/protocol/graphqltransportws"
	"github.com/bhoriuchi/graphql-ws-server/ws/protocol/graphqlws"
	"github.com/bhoriuchi/graphql-ws-server/ws/transport"
	"github.com/fernet/fernet-go"
	"github.com/graphql-go/graphql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSchema(t *testing.T) graphql.Schema {
	t.Helper()

	schema, err := graphql.NewSchema(graphql.SchemaConfig{
		Query: graphql.NewObject(graphql.ObjectConfig{
			Name: "Query",
			Fields: graphql.Fields{
				"count": &graphql.Field{
					Type: graphql.Int,
					Resolve: func(p graphql.ResolveParams) (interface{}, error) {
						return 1, nil
					},
				},
			},
		}),
		Subscription: graphql.NewObject(graphql.ObjectConfig{
			Name: "Subscription",
			Fields: graphql.Fields{
				"count": &graphql.Field{
					Type: graphql.Int,
					Args: graphql.FieldConfigArgument{
						"to": &graphql.ArgumentConfig{Type: graphql.Int},
					},
					Subscribe: func(p graphql.ResolveParams) (interface{}, error) {
						to, _ := p.Args["to"].(int)
						ch := make(chan interface{})
						go func() {
							defer close(ch)
							for i := 1; i <= to; i++ {
								select {
								case ch <- i:
								case <-p.Context.Done():
									return
								}
							}
						}()
						return ch, nil
					},
					Resolve: func(p graphql.ResolveParams) (interface{}, error) {
						return p.Source, nil
					},
				},
			},
		}),
	})
	require.NoError(t, err)
	return schema
}

func serve(t *testing.T, opts ...server.Option) (*server.Server, string) {
	t.Helper()

	s := server.New(append([]server.Option{server.WithSchema(testSchema(t))}, opts...)...)
	srv := httptest.NewServer(s)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.Shutdown(ctx)
		srv.Close()
	})

	return s, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url, subprotocol string, payload map[string]interface{}) *gqlclient.Client {
	t.Helper()

	c, err := gqlclient.Dial(context.Background(), &gqlclient.Options{
		URL:         url,
		Subprotocol: subprotocol,
		InitPayload: payload,
		AckTimeout:  2 * time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func collect(t *testing.T, sub *gqlclient.Subscription) []*gqlclient.Response {
	t.Helper()
	out := []*gqlclient.Response{}
	timeout := time.After(3 * time.Second)

	for {
		select {
		case rsp, ok := <-sub.C:
			if !ok {
				return out
			}
			out = append(out, rsp)
		case <-timeout:
			t.Fatal("subscription did not complete")
		}
	}
}

func waitFor(t *testing.T, c *gqlclient.Client, msgType protocol.MessageType) *protocol.Message {
	t.Helper()
	timeout := time.After(3 * time.Second)

	for {
		select {
		case msg := <-c.Messages():
			if msg.Type == msgType {
				return msg
			}
		case <-timeout:
			t.Fatalf("did not receive %s", msgType)
		}
	}
}

func TestQueryOverBothProtocols(t *testing.T) {
	_, url := serve(t)

	for _, subprotocol := range []string{graphqltransportws.Subprotocol, graphqlws.Subprotocol} {
		t.Run(subprotocol, func(t *testing.T) {
			c := dial(t, url, subprotocol, nil)
			assert.Equal(t, subprotocol, c.Subprotocol())

			sub, err := c.SubscribeWithID("1", gqlclient.Request{Query: "{ count }"})
			require.NoError(t, err)

			out := collect(t, sub)
			require.Len(t, out, 1)
			assert.False(t, out[0].HasErrors())
			assert.Equal(t, map[string]interface{}{"count": float64(1)}, out[0].Data())
		})
	}
}

func TestSubscriptionStreams(t *testing.T) {
	_, url := serve(t)
	c := dial(t, url, graphqltransportws.Subprotocol, nil)

	sub, err := c.Subscribe(gqlclient.Request{
		Query:     "subscription($to: Int) { count(to: $to) }",
		Variables: map[string]interface{}{"to": 3},
	})
	require.NoError(t, err)

	out := collect(t, sub)
	require.Len(t, out, 3)

	for i, rsp := range out {
		var result struct {
			Count int `json:"count"`
		}
		require.NoError(t, rsp.Decode(&result))
		assert.Equal(t, i+1, result.Count)
	}
}

func TestPingPong(t *testing.T) {
	_, url := serve(t)
	c := dial(t, url, graphqltransportws.Subprotocol, nil)

	require.NoError(t, c.Ping(nil))
	waitFor(t, c, protocol.MsgPong)
}

func TestUnsupportedSubprotocol(t *testing.T) {
	_, url := serve(t)

	c, err := gqlclient.Dial(context.Background(), &gqlclient.Options{
		URL:         url,
		Subprotocol: "graphql-unknown",
		SkipInit:    true,
	})
	require.NoError(t, err)
	defer c.Close()

	code, reason := c.CloseStatus()
	assert.Equal(t, int(protocol.SubprotocolNotAcceptable), code)
	assert.Contains(t, reason, "graphql-unknown")
}

func TestLimitedProtocols(t *testing.T) {
	s, url := serve(t, server.WithProtocols(graphqltransportws.Subprotocol, "bogus"))
	assert.Equal(t, []string{graphqltransportws.Subprotocol}, s.Protocols())

	c, err := gqlclient.Dial(context.Background(), &gqlclient.Options{
		URL:         url,
		Subprotocol: graphqlws.Subprotocol,
		SkipInit:    true,
	})
	require.NoError(t, err)
	defer c.Close()

	code, _ := c.CloseStatus()
	assert.Equal(t, int(protocol.SubprotocolNotAcceptable), code)
}

func TestRequiresUpgrade(t *testing.T) {
	s := server.New()
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/graphql", nil))
	assert.Equal(t, http.StatusUpgradeRequired, rec.Code)
}

func TestShutdownClosesConnections(t *testing.T) {
	s, url := serve(t)
	c := dial(t, url, graphqltransportws.Subprotocol, nil)

	require.Eventually(t, func() bool { return s.Connections() == 1 }, time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Shutdown(ctx))

	code, _ := c.CloseStatus()
	assert.Equal(t, int(protocol.GoingAway), code)
	assert.Equal(t, 0, s.Connections())
}

func TestFernetAuthorization(t *testing.T) {
	var key fernet.Key
	require.NoError(t, key.Generate())

	authorizer, err := auth.NewFernetAuthorizer(time.Minute, key.Encode())
	require.NoError(t, err)

	_, url := serve(t, server.WithAuthorizer(authorizer))

	token, err := authorizer.Issue("user-1")
	require.NoError(t, err)
	dial(t, url, graphqltransportws.Subprotocol, map[string]interface{}{"authToken": token})

	c, err := gqlclient.Dial(context.Background(), &gqlclient.Options{
		URL:         url,
		InitPayload: map[string]interface{}{"authToken": "forged"},
		AckTimeout:  2 * time.Second,
	})
	assert.ErrorIs(t, err, gqlclient.ErrClosed)
	assert.Nil(t, c)
}

func TestNhooyrAcceptor(t *testing.T) {
	_, url := serve(t, server.WithAcceptor(&transport.NhooyrAcceptor{InsecureSkipVerify: true}))

	for _, subprotocol := range []string{graphqltransportws.Subprotocol, graphqlws.Subprotocol} {
		t.Run(subprotocol, func(t *testing.T) {
			c := dial(t, url, subprotocol, nil)

			sub, err := c.Subscribe(gqlclient.Request{Query: "subscription { count(to: 2) }"})
			require.NoError(t, err)
			assert.Len(t, collect(t, sub), 2)
		})
	}
}

func TestLegacyKeepAlive(t *testing.T) {
	_, url := serve(t, server.WithKeepAlive(20*time.Millisecond))
	c := dial(t, url, graphqlws.Subprotocol, nil)

	waitFor(t, c, protocol.MsgKeepAlive)
	waitFor(t, c, protocol.MsgKeepAlive)
}
