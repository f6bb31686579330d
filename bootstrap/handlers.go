package bootstrap

import "github.com/wjixiang/aikb/handlers"

type Handlers struct {
	DocHandler *handlers.DocHandler
	WSHandler  *handlers.WSHandler
}

func NewHandlers(services *Services, infra *Infrastructure) *Handlers {
	res := &Handlers{}
	d := handlers.NewDocHandler(services.DocService)
	res.DocHandler = d
	w := handlers.NewWSHandler(infra.EventPublisher)
	res.WSHandler = w
	return res
}
