package bootstrap

import (
	"github.com/wjixiang/aikb/config"
	"github.com/wjixiang/aikb/services"
	"github.com/wjixiang/aikb/tracker"
)

type Services struct {
	DocService  *services.DocumentService
	Converter   services.Converter
	PDFSplitter *services.PDFSplitter
	PartTracker *tracker.PartTracker
}

func NewServices(cfg *config.Config, repos *Repositories, infra *Infrastructure) *Services {
	res := &Services{}

	partTracker := tracker.NewPartTracker(cfg.MaxRetries)
	res.PartTracker = partTracker

	res.Converter = services.NewHTTPConverter(cfg.ConverterURL, cfg.ConverterTimeout)
	res.PDFSplitter = services.NewPDFSplitter()

	docService := services.NewDocumentService(
		repos.DocumentRepository, infra.Broker, infra.Storage, partTracker, infra.Cache)
	res.DocService = docService

	return res
}
