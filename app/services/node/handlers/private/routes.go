package private

import (
	"net/http"

	"github.com/ardanlabs/powledger/foundation/blockchain/state"
	"github.com/ardanlabs/powledger/foundation/web"
	"go.uber.org/zap"
)

// Config contains all the mandatory systems required by handlers.
type Config struct {
	Log   *zap.SugaredLogger
	State *state.State
}

// Routes binds all the private routes.
func Routes(app *web.App, cfg Config) {
	prv := Handlers{
		Log:   cfg.Log,
		State: cfg.State,
	}

	const version = "v1"

	app.Handle(http.MethodPost, version, "/node/peers", prv.SubmitPeer)
	app.Handle(http.MethodDelete, version, "/node/peers/:host", prv.RemovePeer)
	app.Handle(http.MethodGet, version, "/node/status", prv.Status)
	app.Handle(http.MethodGet, version, "/node/block/:id", prv.BlockByID)
	app.Handle(http.MethodGet, version, "/node/hash/:hash", prv.ByHash)
	app.Handle(http.MethodGet, version, "/node/queries/:hash", prv.Queries)
	app.Handle(http.MethodPost, version, "/node/topic/:topic", prv.Topic)
	app.Handle(http.MethodPost, version, "/node/batch", prv.SubmitMessage)
	app.Handle(http.MethodGet, version, "/node/freshness/:type/:key/:at", prv.Freshness)
	app.Handle(http.MethodGet, version, "/node/tx/list", prv.Mempool)
}
