package models

import "time"

type Role string

const (
	RoleLeader   Role = "leader"
	RoleCoLeader Role = "co-leader"
	RoleMember   Role = "member"
)

// CanManageRequests reports whether the role may accept or reject join requests.
func (r Role) CanManageRequests() bool {
	return r == RoleLeader || r == RoleCoLeader
}

type RequestStatus string

const (
	RequestPending  RequestStatus = "pending"
	RequestAccepted RequestStatus = "accepted"
	RequestRejected RequestStatus = "rejected"
)

// Clan is a user-formed team. Its chat room shares the clan ID.
type Clan struct {
	ID              string        `json:"id"`
	Name            string        `json:"name"`
	LeaderID        string        `json:"leader_id"`
	CreatedAt       time.Time     `json:"created_at"`
	Members         []Member      `json:"members"`
	PendingRequests []JoinRequest `json:"pending_requests"`
}

type Member struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Role   Role   `json:"role,omitempty"`
	Avatar string `json:"avatar,omitempty"`
	Online bool   `json:"online"`
}

type JoinRequest struct {
	ClanID    string        `json:"clan_id"`
	UserID    string        `json:"user_id"`
	UserName  string        `json:"user_name"`
	Status    RequestStatus `json:"status"`
	CreatedAt time.Time     `json:"created_at"`
}

type CreateClanRequest struct {
	Name string `json:"name"`
}
