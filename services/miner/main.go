// A reference miner for local development. It answers validator queries with
// synthesized payloads that satisfy the response schema, which makes it
// useful for exercising the scoring pipeline end to end without real data
// sources.
package main

import (
	"context"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tickernet-ai/tickernet/pkg/logging"
	"github.com/tickernet-ai/tickernet/pkg/protocol"
)

func main() {
	logger := logging.New()
	log := logging.Component(logger, "miner")

	port := os.Getenv("PORT")
	if port == "" {
		port = "7001"
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.POST("/query", func(c *gin.Context) {
		var query protocol.Query
		if err := c.ShouldBindJSON(&query); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid query: " + err.Error()})
			return
		}
		if !protocol.IsValidTicker(query.Ticker) || !query.Category.Valid() {
			c.JSON(http.StatusOK, protocol.FailedResponse(query.Ticker, "unsupported query"))
			return
		}

		log.WithField("ticker", query.Ticker).WithField("category", query.Category).
			Info("answering query")
		c.JSON(http.StatusOK, answer(&query, rng))
	})

	srv := &http.Server{Addr: ":" + port, Handler: router}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("listen: %v", err)
		}
	}()
	log.WithField("port", port).Info("reference miner started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
}

// answer synthesizes a plausible, schema-conforming payload for a query.
func answer(query *protocol.Query, rng *rand.Rand) *protocol.Response {
	ticker := strings.ToUpper(query.Ticker)
	company := map[string]any{
		"ticker":      ticker,
		"companyName": ticker + " Corporation",
		"website":     "https://" + strings.ToLower(ticker) + ".example.com",
		"exchange":    "NASDAQ",
		"sector":      "Technology",
		"marketCap":   1.0e9 + rng.Float64()*1.0e12,
		"sharePrice":  10 + rng.Float64()*500,
	}

	return &protocol.Response{
		Success: true,
		Data: map[string]any{
			"company":         company,
			"confidenceScore": 0.65 + rng.Float64()*0.3,
			"data":            categoryData(query.Category, rng),
		},
	}
}

func categoryData(category protocol.Category, rng *rand.Rand) map[string]any {
	now := time.Now().UTC().Format(time.RFC3339)
	switch category {
	case protocol.CategoryCrypto:
		amount := rng.Float64() * 10000
		return map[string]any{
			"currentHoldings": []any{
				map[string]any{
					"currency":    "BTC",
					"amount":      amount,
					"usdValue":    amount * 60000,
					"lastUpdated": now,
				},
			},
			"currentTotalUsd":    amount * 60000,
			"historicalHoldings": []any{},
		}
	case protocol.CategorySentiment:
		labels := []string{"positive", "negative", "neutral"}
		return map[string]any{
			"overallSentiment": labels[rng.Intn(len(labels))],
			"sentimentScore":   rng.Float64()*2 - 1,
			"confidence":       0.5 + rng.Float64()*0.5,
			"sources":          []any{},
		}
	case protocol.CategoryNews:
		return map[string]any{
			"articles": []any{
				map[string]any{
					"title":          "Quarterly results announced",
					"source":         "Example Wire",
					"published_date": now,
					"summary":        "Summary of the latest filing.",
				},
			},
			"summary": map[string]any{"total_articles": 1},
		}
	default:
		return map[string]any{
			"marketCap":  1.0e9 + rng.Float64()*1.0e12,
			"sharePrice": 10 + rng.Float64()*500,
			"volume":     float64(rng.Intn(10_000_000)),
			"eps":        rng.Float64() * 10,
			"sector":     "Technology",
		}
	}
}
