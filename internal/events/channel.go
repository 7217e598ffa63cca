package events

import (
	"fmt"
	"strconv"
	"strings"
)

// Channel is a subscription address. The "private:" prefix means the policy gate must
// approve the subscriber; "public:" channels are open.
type Channel string

const (
	ChannelAdminLoanRequests Channel = "private:admin.book-loan-requests"
	ChannelDashboardSummary  Channel = "private:dashboard.summary"
	ChannelPublicSummary     Channel = "public:summary"
	ChannelActivityLogs      Channel = "private:activity.logs"
)

const userLoanRequestsPrefix = "private:book-loan-requests.user."

// UserLoanRequestsChannel is the requester's own notification channel.
func UserLoanRequestsChannel(userID uint) Channel {
	return Channel(fmt.Sprintf("%s%d", userLoanRequestsPrefix, userID))
}

// ParseUserLoanRequestsChannel extracts the owner id of a per-user channel.
func ParseUserLoanRequestsChannel(ch Channel) (uint, bool) {
	raw, ok := strings.CutPrefix(string(ch), userLoanRequestsPrefix)
	if !ok || raw == "" {
		return 0, false
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

func (c Channel) IsPublic() bool { return strings.HasPrefix(string(c), "public:") }

func (c Channel) String() string { return string(c) }
