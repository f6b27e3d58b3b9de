package tasks

import "github.com/bwmarrin/snowflake"

type PurchaseOrderArgs struct {
	RequestID snowflake.ID
}

type DocumentArgs struct {
	RequestID snowflake.ID
	FileURL   string
}

type NotificationArgs struct {
	RequestID snowflake.ID
	Kind      string
	ActorID   *snowflake.ID
}
