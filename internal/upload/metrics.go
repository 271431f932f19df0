package upload

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	filesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "uploader_files_total",
		Help: "Files sent to the storage backend, by outcome.",
	}, []string{"backend", "result"})

	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "uploader_requests_total",
		Help: "Upload requests, by outcome.",
	}, []string{"result"})

	notificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "uploader_notifications_total",
		Help: "Chat notifications attempted, by outcome.",
	}, []string{"result"})
)
