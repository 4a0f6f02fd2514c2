package ban

import "fmt"

// reasonKind discriminates the BanReason variants.
type reasonKind int

const (
	kindFailedHealthCheck reasonKind = iota
	kindMessageSendFailed
	kindMessageReceiveFailed
	kindFailedCheckout
	kindStatementTimeout
	kindAdminBan
)

// BanReason records why an endpoint was banned. The automatic variants share
// the registry-wide ban duration; an admin ban carries its own duration.
type BanReason struct {
	kind reasonKind

	// adminDuration is the expiry in seconds for admin bans only.
	adminDuration int64
}

// FailedHealthCheck - the endpoint failed an active health check.
func FailedHealthCheck() BanReason { return BanReason{kind: kindFailedHealthCheck} }

// MessageSendFailed - sending a protocol message to the endpoint failed.
func MessageSendFailed() BanReason { return BanReason{kind: kindMessageSendFailed} }

// MessageReceiveFailed - receiving a protocol message from the endpoint failed.
func MessageReceiveFailed() BanReason { return BanReason{kind: kindMessageReceiveFailed} }

// FailedCheckout - checking a connection out of the endpoint's pool failed.
func FailedCheckout() BanReason { return BanReason{kind: kindFailedCheckout} }

// StatementTimeout - a statement against the endpoint exceeded its timeout.
func StatementTimeout() BanReason { return BanReason{kind: kindStatementTimeout} }

// AdminBan - an operator-initiated ban with an explicit expiry in seconds.
func AdminBan(durationSeconds int64) BanReason {
	return BanReason{kind: kindAdminBan, adminDuration: durationSeconds}
}

// IsAdmin reports whether the reason is an operator-initiated ban.
func (r BanReason) IsAdmin() bool {
	return r.kind == kindAdminBan
}

// AdminDuration returns the expiry in seconds carried by an admin ban.
// Zero for every other variant.
func (r BanReason) AdminDuration() int64 {
	if r.kind == kindAdminBan {
		return r.adminDuration
	}
	return 0
}

// incrementsErrorCount reports whether banning for this reason counts as a
// failure against the endpoint's error counter. Statement timeouts and admin
// bans do not.
func (r BanReason) incrementsErrorCount() bool {
	switch r.kind {
	case kindFailedHealthCheck, kindFailedCheckout, kindMessageSendFailed, kindMessageReceiveFailed:
		return true
	default:
		return false
	}
}

// String returns the string representation of the reason.
func (r BanReason) String() string {
	switch r.kind {
	case kindFailedHealthCheck:
		return "failed_health_check"
	case kindMessageSendFailed:
		return "message_send_failed"
	case kindMessageReceiveFailed:
		return "message_receive_failed"
	case kindFailedCheckout:
		return "failed_checkout"
	case kindStatementTimeout:
		return "statement_timeout"
	case kindAdminBan:
		return fmt.Sprintf("admin_ban(%ds)", r.adminDuration)
	default:
		return "unknown"
	}
}

// UnbanReason explains a positive ShouldUnban verdict. Produced only by the
// decision function, never stored.
type UnbanReason int

const (
	// UnbanAllReplicasBanned - every replica in the shard is banned and
	// failover to the primary is disallowed
	UnbanAllReplicasBanned UnbanReason = iota
	// UnbanBanTimeExceeded - the ban has outlived its duration
	UnbanBanTimeExceeded
	// UnbanPrimaryBanned - a primary was asked about; it must never stay banned
	UnbanPrimaryBanned
	// UnbanNotBanned - no ban record exists for the endpoint
	UnbanNotBanned
)

// String returns the string representation of the unban reason.
func (r UnbanReason) String() string {
	switch r {
	case UnbanAllReplicasBanned:
		return "all_replicas_banned"
	case UnbanBanTimeExceeded:
		return "ban_time_exceeded"
	case UnbanPrimaryBanned:
		return "primary_banned"
	case UnbanNotBanned:
		return "not_banned"
	default:
		return "unknown"
	}
}
