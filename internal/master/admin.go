package master

import (
	"log"
	"net/http"

	"github.com/go-martini/martini"
	"github.com/martini-contrib/binding"
	"github.com/martini-contrib/render"
)

// DrainForm is the bound body of POST /drain, matching sched/http.go's
// JobForm binding style.
type DrainForm struct {
	Reason string `form:"reason" binding:"required"`
}

// StartAdmin mounts the master's HTTP status surface on addr: a
// read-only queue/pairing snapshot plus a single operator action
// (drain) for taking the master out of rotation without killing the
// process outright. Grounded on sched/http.go's martini wiring.
func StartAdmin(addr string, engine *Engine) {
	mart := martini.Classic()
	mart.Use(render.Renderer())

	mart.Get("/status", func(r render.Render) {
		s := engine.Stat()
		r.JSON(http.StatusOK, map[string]interface{}{
			"clients_waiting": s.ClientsWaiting.Int(),
			"workers_waiting": s.WorkersWaiting.Int(),
			"paired":          s.Paired.Int(),
		})
	})

	mart.Post("/drain", binding.Bind(DrainForm{}), func(f DrainForm, r render.Render) {
		log.Printf("master: drain requested: %s\n", f.Reason)
		engine.Stop()
		r.JSON(http.StatusOK, map[string]interface{}{"draining": true})
	})

	mart.RunOnAddr(addr)
}
