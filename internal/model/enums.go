package model

type SessionStatus string

const (
	SessionStatusUnauthenticated SessionStatus = "unauthenticated"
	SessionStatusAuthenticated   SessionStatus = "authenticated"
)

type DeleteFlag string

const (
	DeleteFlagActive  DeleteFlag = "active"
	DeleteFlagDeleted DeleteFlag = "deleted"
)
