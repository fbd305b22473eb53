package session

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bhoriuchi/graphql-ws-server/executor"
	"github.com/bhoriuchi/graphql-ws-server/logger"
	"github.com/bhoriuchi/graphql-ws-server/metadata"
	"github.com/bhoriuchi/graphql-ws-server/utils"
	"github.com/bhoriuchi/graphql-ws-server/ws/manager"
	"github.com/bhoriuchi/graphql-ws-server/ws/protocol"
	"github.com/graphql-go/graphql/gqlerrors"
)

func (s *Session) handleSubscribe(msg *protocol.Message) {
	id := msg.ID
	if strings.TrimSpace(id) == "" {
		s.sendError("", utils.GQLErrors("id cannot be blank"))
		return
	}

	subLog := s.log.WithField("subscriptionId", id)

	payload := &protocol.SubscribePayload{}
	if err := msg.DecodePayload(payload); err != nil {
		subLog.WithError(err).Debugf("invalid subscribe payload")
		s.sendError(id, utils.GQLErrors(err))
		return
	}

	if err := payload.Validate(); err != nil {
		s.sendError(id, utils.GQLErrors(err))
		return
	}

	if s.config.Hooks.OnSubscribe != nil {
		if errs := s.config.Hooks.OnSubscribe(s, id, payload); len(errs) > 0 {
			s.sendError(id, errs)
			return
		}
	}

	ctx, cancel := context.WithCancel(s.Context())
	ctx = metadata.NewWithContext(ctx)
	metadata.Set(ctx, metadata.ConnectionIDKey, s.ConnectionID())
	metadata.Set(ctx, metadata.SubprotocolKey, s.Subprotocol())
	metadata.Set(ctx, metadata.SubscriptionIDKey, id)

	sub := manager.NewSubscription(ctx, id, payload.OperationName, cancel)

	if s.registry.Closed() {
		cancel()
		return
	}

	if !s.config.AllowOverwrite && s.registry.Contains(id) {
		cancel()
		s.sendExists(id)
		return
	}

	// nothing is registered until the operation is running
	if s.config.Executor == nil {
		cancel()
		s.sendError(id, utils.GQLErrors("no executor configured"))
		return
	}

	events, err := s.config.Executor.Execute(ctx, &executor.Request{
		ID:            id,
		Query:         payload.Query,
		OperationName: payload.OperationName,
		Variables:     payload.Variables,
		Extensions:    payload.Extensions,
	})
	if err != nil {
		cancel()
		subLog.WithError(err).Debugf("failed to execute operation")
		s.sendError(id, errorList(err))
		return
	}

	if !s.registry.TryAdd(id, sub) {
		switch {
		case s.registry.Closed():
			cancel()
			return
		case !s.config.AllowOverwrite:
			cancel()
			s.sendExists(id)
			return
		case !s.replace(id, sub):
			cancel()
			return
		}
		subLog.Debugf("replaced running operation")
	}

	subLog.Debugf("operation %q started", sub.OperationName)
	s.config.Metrics.SubscriptionStarted(s.Subprotocol())
	go s.consume(id, sub, events, subLog)
}

func (s *Session) sendExists(id string) {
	s.sendError(id, utils.GQLErrors(fmt.Sprintf("subscriber for %q already exists", id)))
}

// replace swaps sub in for whatever is registered under id. The previous
// handle is disposed after the swap and its consumer has stopped before
// replace returns.
func (s *Session) replace(id string, sub *manager.Subscription) bool {
	for !s.registry.Closed() {
		old, ok := s.registry.Load(id)
		if !ok {
			if s.registry.TryAdd(id, sub) {
				return true
			}
			continue
		}

		if s.registry.CompareExchange(id, old, sub) {
			old.Dispose()
			s.waitFinished(old)
			return true
		}
	}

	return false
}

// waitFinished blocks until the consumer of sub can no longer send
func (s *Session) waitFinished(sub *manager.Subscription) {
	select {
	case <-sub.Done():
	case <-s.Context().Done():
	}
}

// consume forwards events for one operation. Only the goroutine that
// removes the handle from the registry may send the terminal message.
func (s *Session) consume(id string, sub *manager.Subscription, events <-chan *executor.Event, subLog *logger.LogWrapper) {
	defer sub.Finish()
	defer s.config.Metrics.SubscriptionEnded(s.Subprotocol())
	defer sub.Dispose()

	for {
		select {
		case <-sub.Context.Done():
			// still registered means the parent scope ended, not a stop
			if s.registry.TryRemoveHandle(id, sub) {
				cause := context.Cause(sub.Context)
				subLog.WithError(cause).Debugf("operation scope ended")
				s.sendError(id, utils.GQLErrors(fmt.Sprintf("operation ended: %s", cause)))
				return
			}
			subLog.Tracef("operation cancelled")
			return

		case event, ok := <-events:
			if !ok {
				if s.registry.TryRemoveHandle(id, sub) {
					s.out.Post(s.variant.Complete(id))
					subLog.Debugf("operation completed")

					if s.config.Hooks.OnComplete != nil {
						s.config.Hooks.OnComplete(s, id)
					}
				}
				return
			}

			if event.Err != nil {
				subLog.WithError(event.Err).Debugf("operation stream failed")
				if s.registry.TryRemoveHandle(id, sub) {
					s.sendError(id, errorList(event.Err))
					if s.config.DisconnectAfterErrorEvent {
						s.fail(protocol.ErrExecutionFailed)
					}
				}
				return
			}

			if !s.registry.ContainsHandle(id, sub) {
				continue
			}

			result := event.Result
			if s.config.Hooks.OnNext != nil {
				var err error
				if result, err = s.config.Hooks.OnNext(s, id, result); err != nil {
					subLog.WithError(err).Debugf("onNext dropped a result")
					continue
				}
			}

			if result == nil {
				continue
			}

			if result.HasErrors() && s.config.DisconnectAfterAnyError {
				if s.registry.TryRemoveHandle(id, sub) {
					s.sendError(id, result.Errors)
					s.fail(protocol.ErrExecutionFailed)
				}
				return
			}

			s.out.Post(s.variant.Next(id, result))
		}
	}
}

// handleComplete stops an operation. Unknown ids are ignored.
func (s *Session) handleComplete(msg *protocol.Message) {
	sub, ok := s.registry.TryRemove(msg.ID)
	if !ok {
		return
	}

	sub.Dispose()
	s.waitFinished(sub)
	s.log.WithField("subscriptionId", msg.ID).Debugf("operation stopped by client")
}

func errorList(err error) gqlerrors.FormattedErrors {
	var execErr *executor.Error
	if errors.As(err, &execErr) {
		return execErr.Errors
	}
	return utils.GQLErrors(err)
}
