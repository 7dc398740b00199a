package rest

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/llm-d-incubation/gemm-perf-model/pkg/config"
	"github.com/llm-d-incubation/gemm-perf-model/pkg/manager"
)

// A stateless REST server: the model is fixed at startup, every call is a pure prediction
type StateLessServer struct {
	BaseServer
	handlers *handlers
}

// create a stateless REST server
func NewStateLessServer(mgr *manager.Manager, cd *config.ConfigData, gatherer prometheus.Gatherer) *StateLessServer {
	server := &StateLessServer{
		BaseServer: *NewBaseServer(cd.Server),
		handlers: &handlers{
			manager: mgr,
			gpu:     cd.GPU,
			opts:    cd.ModelOpts,
		},
	}

	server.router.POST("/predict", server.handlers.predict)
	server.router.POST("/predictBatch", server.handlers.predictBatch)

	server.router.GET("/model", server.handlers.getModel)
	server.router.GET("/gpu", server.handlers.getGPU)

	if gatherer != nil {
		server.router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	return server
}
