package session

import (
	"github.com/openclaw/session-gateway-go/internal/credentials"
	"github.com/openclaw/session-gateway-go/internal/model"
	"github.com/openclaw/session-gateway-go/internal/transport"
)

type EffectKind int

const (
	// EffectRenderCode renders State.PairingCode into State.QRImage.
	EffectRenderCode EffectKind = iota
	EffectPersistStatus
	EffectSaveCredentials
	EffectScheduleReconnect
	EffectResetReconnect
	// EffectTerminate closes the handle and drops the registry entry.
	EffectTerminate
	EffectNotify
)

// Notice types published to event subscribers.
const (
	NoticeQR           = "qr"
	NoticeConnected    = "connected"
	NoticeDisconnected = "disconnected"
	NoticeLoggedOut    = "logged_out"
)

type Effect struct {
	Kind        EffectKind
	Status      model.SessionStatus
	Identity    *model.AccountIdentity
	Credentials *credentials.Material
	Reason      transport.DisconnectReason
	Notice      string
}

// Transition is the lifecycle state machine. It performs no I/O; the
// returned effects are applied in order by the controller.
func Transition(s State, evt transport.Event) (State, []Effect) {
	if s.Phase == PhaseTerminated {
		return s, nil
	}

	switch evt.Type {
	case transport.EventPairingCode:
		if s.IsAuthenticated || evt.PairingCode == "" {
			return s, nil
		}
		s.PairingCode = evt.PairingCode
		s.QRImage = ""
		s.Phase = PhaseAwaitingScan
		return s, []Effect{
			{Kind: EffectRenderCode},
			{Kind: EffectNotify, Notice: NoticeQR},
		}

	case transport.EventConnectionOpen:
		s.IsConnected = true
		s.IsAuthenticated = true
		s.PairingCode = ""
		s.QRImage = ""
		s.Phase = PhaseLive
		if evt.Account != nil {
			s.Account = evt.Account
		}
		return s, []Effect{
			{Kind: EffectResetReconnect},
			{Kind: EffectPersistStatus, Status: model.SessionStatusAuthenticated, Identity: identityOf(s.Account)},
			{Kind: EffectNotify, Notice: NoticeConnected},
		}

	case transport.EventConnectionClosed:
		if transport.Classify(evt.Reason) == transport.Terminal {
			return terminate(s, evt.Reason)
		}
		s.IsConnected = false
		s.PairingCode = ""
		s.QRImage = ""
		s.Phase = PhaseReconnecting
		return s, []Effect{
			{Kind: EffectScheduleReconnect, Reason: evt.Reason},
			{Kind: EffectNotify, Notice: NoticeDisconnected, Reason: evt.Reason},
		}

	case transport.EventCredentialsUpdated:
		var effects []Effect
		if evt.Credentials != nil {
			effects = append(effects, Effect{Kind: EffectSaveCredentials, Credentials: evt.Credentials})
		}
		if s.IsAuthenticated && evt.Account != nil && !sameAccount(s.Account, evt.Account) {
			s.Account = evt.Account
			effects = append(effects, Effect{
				Kind:     EffectPersistStatus,
				Status:   model.SessionStatusAuthenticated,
				Identity: identityOf(s.Account),
			})
		}
		return s, effects
	}

	return s, nil
}

// terminate is the transition for every non-retryable end of a session.
func terminate(s State, reason transport.DisconnectReason) (State, []Effect) {
	s.IsConnected = false
	s.IsAuthenticated = false
	s.PairingCode = ""
	s.QRImage = ""
	s.Phase = PhaseTerminated
	return s, []Effect{
		{Kind: EffectPersistStatus, Status: model.SessionStatusUnauthenticated},
		{Kind: EffectTerminate, Reason: reason},
		{Kind: EffectNotify, Notice: NoticeLoggedOut, Reason: reason},
	}
}

func identityOf(a *transport.Account) *model.AccountIdentity {
	if a == nil {
		return nil
	}
	id := &model.AccountIdentity{ID: a.ID, Name: a.Name}
	if id.IsZero() {
		return nil
	}
	return id
}

func sameAccount(a, b *transport.Account) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
