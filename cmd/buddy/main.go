package main

import (
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"

	"github.com/iamafoodie/buddy/internal/chat"
	"github.com/iamafoodie/buddy/internal/config"
	"github.com/iamafoodie/buddy/internal/identity"
	"github.com/iamafoodie/buddy/internal/inbox"
	"github.com/iamafoodie/buddy/internal/ledger"
	"github.com/iamafoodie/buddy/internal/migration"
	"github.com/iamafoodie/buddy/internal/observability"
	"github.com/iamafoodie/buddy/internal/payment"
	"github.com/iamafoodie/buddy/internal/providers/plugpay"
	"github.com/iamafoodie/buddy/internal/providers/whatsapp"
	"github.com/iamafoodie/buddy/internal/ratelimit"
	"github.com/iamafoodie/buddy/internal/server"
	"github.com/iamafoodie/buddy/pkg/db"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,

		// Domains
		identity.Module,
		inbox.Module,
		ledger.Module,
		payment.Module,
		chat.Module,
		ratelimit.Module,

		// Outbound providers
		plugpay.Module,
		whatsapp.Module,

		// HTTP surface
		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
