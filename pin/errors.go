package pin

import (
	"errors"
	"fmt"
	"strings"

	"github.com/onnwee/pinvote/vote"
)

// ErrRateLimited is returned when the channel cooldown denied the pin. It is an expected outcome.
var ErrRateLimited = errors.New("pin rate limited")

// ErrorKind classifies why the platform refused or failed a pin.
type ErrorKind int

const (
	// KindUnknown is an error that matched no known pattern.
	KindUnknown ErrorKind = iota
	// KindNotFound means the message or channel no longer exists.
	KindNotFound
	// KindPermission means the bot is not allowed to pin there.
	KindPermission
	// KindRejected means the platform refused the pin for a policy reason (pin limit, archived channel).
	KindRejected
	// KindTransient is a network, server or platform rate-limit failure.
	KindTransient
)

// String returns a human-readable name for the error kind.
func (k ErrorKind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindPermission:
		return "permission"
	case KindRejected:
		return "rejected"
	case KindTransient:
		return "transient"
	default:
		return "unknown"
	}
}

// Error is a failed pin side effect.
type Error struct {
	Ref  vote.MessageRef
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("pin %s failed (%s): %v", e.Ref, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Classify maps a platform error onto an ErrorKind by inspecting its message. Slack reports
// failures as short snake_case codes, network layers as free text; both are matched here.
func Classify(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}
	lower := strings.ToLower(err.Error())

	notFound := []string{
		"message_not_found",
		"channel_not_found",
		"thread_not_found",
		"no_item_specified",
		"not found",
		"404",
	}
	for _, p := range notFound {
		if strings.Contains(lower, p) {
			return KindNotFound
		}
	}

	permission := []string{
		"not_in_channel",
		"missing_scope",
		"not_allowed_token_type",
		"restricted_action",
		"invalid_auth",
		"not_authed",
		"account_inactive",
		"token_revoked",
		"permission",
		"401",
		"403",
	}
	for _, p := range permission {
		if strings.Contains(lower, p) {
			return KindPermission
		}
	}

	rejected := []string{
		"too_many_pins",
		"is_archived",
		"channel_is_archived",
		"not_pinnable",
		"bad_timestamp",
	}
	for _, p := range rejected {
		if strings.Contains(lower, p) {
			return KindRejected
		}
	}

	transient := []string{
		"ratelimited",
		"rate limit",
		"429",
		"timeout",
		"connection reset",
		"connection refused",
		"eof",
		"500",
		"502",
		"503",
		"504",
		"internal_error",
		"fatal_error",
		"service_unavailable",
		"request_timeout",
	}
	for _, p := range transient {
		if strings.Contains(lower, p) {
			return KindTransient
		}
	}
	return KindUnknown
}

// IsAlreadyPinned reports whether the platform said the message was pinned before.
func IsAlreadyPinned(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "already_pinned")
}
