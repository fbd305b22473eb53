package main

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/bhoriuchi/graphql-ws-server/logger"
	"github.com/graphql-go/graphql"
)

func buildSchema(l *logger.LogWrapper) (*graphql.Schema, error) {
	var counter atomic.Int64

	schema, err := graphql.NewSchema(graphql.SchemaConfig{
		Query: graphql.NewObject(graphql.ObjectConfig{
			Name: "Query",
			Fields: graphql.Fields{
				"hello": &graphql.Field{
					Type: graphql.String,
					Resolve: func(p graphql.ResolveParams) (interface{}, error) {
						return "world", nil
					},
				},
				"count": &graphql.Field{
					Type: graphql.Int,
					Resolve: func(p graphql.ResolveParams) (interface{}, error) {
						return int(counter.Load()), nil
					},
				},
			},
		}),
		Mutation: graphql.NewObject(graphql.ObjectConfig{
			Name: "Mutation",
			Fields: graphql.Fields{
				"increment": &graphql.Field{
					Type: graphql.Int,
					Resolve: func(p graphql.ResolveParams) (interface{}, error) {
						return int(counter.Add(1)), nil
					},
				},
			},
		}),
		Subscription: graphql.NewObject(graphql.ObjectConfig{
			Name: "Subscription",
			Fields: graphql.Fields{
				"watch": &graphql.Field{
					Type: graphql.String,
					Args: graphql.FieldConfigArgument{
						"iterations": &graphql.ArgumentConfig{
							Type:         graphql.Int,
							DefaultValue: 10,
						},
						"waitSeconds": &graphql.ArgumentConfig{
							Type:         graphql.Int,
							DefaultValue: 2,
						},
					},
					Resolve: func(p graphql.ResolveParams) (interface{}, error) {
						return p.Source, nil
					},
					Subscribe: func(p graphql.ResolveParams) (interface{}, error) {
						iterations := p.Args["iterations"].(int)
						wait := time.Duration(p.Args["waitSeconds"].(int)) * time.Second
						if wait <= 0 {
							wait = time.Millisecond
						}

						c := make(chan interface{})
						go func() {
							defer close(c)
							ticker := time.NewTicker(wait)
							defer ticker.Stop()

							for i := 0; i < iterations; i++ {
								select {
								case <-p.Context.Done():
									return
								case <-ticker.C:
								}

								msg := fmt.Sprintf("Iteration %d of %d", i+1, iterations)
								l.Tracef("sending %q", msg)

								select {
								case <-p.Context.Done():
									return
								case c <- msg:
								}
							}
						}()

						return c, nil
					},
				},
			},
		}),
	})

	if err != nil {
		return nil, err
	}

	return &schema, nil
}
