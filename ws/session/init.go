package session

import (
	"github.com/bhoriuchi/graphql-ws-server/utils/interval"
	"github.com/bhoriuchi/graphql-ws-server/ws/protocol"
)

func (s *Session) handleInit(msg *protocol.Message) {
	if s.State() == Accepted {
		s.fail(protocol.ErrTooManyInitialisationRequests)
		return
	}

	payload, err := msg.RecordPayload()
	if err != nil {
		s.log.WithError(err).Debugf("invalid connection_init payload")
		s.fail(protocol.NewCloseError(protocol.BadRequest, "Invalid connection_init payload"))
		return
	}
	s.params = payload

	identity := s.ctx
	if s.config.Authorizer != nil {
		ctx, err := s.config.Authorizer.Authorize(s.ctx, payload)
		if err != nil {
			s.log.WithError(err).Debugf("connection refused by authorizer")
			s.fail(protocol.ErrForbidden)
			return
		}

		if ctx != nil {
			identity = ctx
		}
	}
	s.identity = identity

	var ackPayload interface{}
	if s.config.Hooks.OnConnect != nil {
		if ackPayload, err = s.config.Hooks.OnConnect(s, payload); err != nil {
			s.log.WithError(err).Debugf("connection refused by onConnect")
			s.fail(protocol.ErrForbidden)
			return
		}
	}

	// the init timeout may have fired while authorizing
	if !s.state.CompareAndSwap(int32(Initializing), int32(Accepted)) {
		return
	}

	s.initTimer.Clear()
	s.out.Post(s.variant.Ack(ackPayload))
	s.log.Debugf("connection acknowledged")
	s.startKeepAlive()
}

func (s *Session) startKeepAlive() {
	if s.config.KeepAlive <= 0 {
		return
	}

	if s.variant.KeepAliveOnAck() {
		s.out.Post(s.variant.KeepAlive())
	}

	s.keepAlive = interval.SetInterval(func(i *interval.Interval) {
		if s.State() != Accepted || !s.out.Post(s.variant.KeepAlive()) {
			i.Clear()
		}
	}, s.config.KeepAlive)
}

func (s *Session) handlePing(msg *protocol.Message) {
	payload, _ := msg.RecordPayload()
	s.out.Post(s.variant.Pong(nil))

	if s.config.Hooks.OnPing != nil {
		s.config.Hooks.OnPing(s, payload)
	}
}

func (s *Session) handlePong(msg *protocol.Message) {
	if s.config.Hooks.OnPong != nil {
		payload, _ := msg.RecordPayload()
		s.config.Hooks.OnPong(s, payload)
	}
}
