package services

import (
	"database/sql"
	"fmt"

	"github.com/patrickmn/go-cache"
	"github.com/shopspring/decimal"
	"github.com/username/portfoliodesk/backend/src/logger"
	"github.com/username/portfoliodesk/backend/src/model"
)

const recentItemsLimit = 5

// StockLotSummary aggregates held lots per stock symbol across all of a
// user's clients.
type StockLotSummary struct {
	Symbol string          `json:"symbol"`
	Name   string          `json:"name"`
	Lots   decimal.Decimal `json:"lots"`
}

// DashboardSummary is the aggregate view backing the dashboard page.
// Investment value and profit/loss use the per-lot marks: value is
// currentValue x quantity, cost is acquisitionCost x quantity.
type DashboardSummary struct {
	TotalClients      int                 `json:"totalClients"`
	TotalInvestments  int                 `json:"totalInvestments"`
	TotalTransactions int                 `json:"totalTransactions"`
	TotalValue        decimal.Decimal     `json:"totalInvestmentValue"`
	TotalCost         decimal.Decimal     `json:"totalAcquisitionCost"`
	TotalProfitLoss   decimal.Decimal     `json:"totalProfitLoss"`
	TotalCashPosition decimal.Decimal     `json:"totalCashPosition"`
	TotalLots         decimal.Decimal     `json:"totalLots"`
	StockLots         []StockLotSummary   `json:"stockLots"`
	RecentTransaction []model.Transaction `json:"recentTransactions"`
	RecentClients     []model.Client      `json:"recentClients"`
}

// DashboardService computes per-user aggregates and memoizes them; any
// mutation through the API invalidates the user's entry.
type DashboardService struct {
	db    *sql.DB
	cache *cache.Cache
}

func NewDashboardService(db *sql.DB, c *cache.Cache) *DashboardService {
	return &DashboardService{db: db, cache: c}
}

func dashboardCacheKey(userID int64) string {
	return fmt.Sprintf("dashboard:%d", userID)
}

// Invalidate drops the cached summary for a user. Call after any client,
// investment, or transaction mutation.
func (s *DashboardService) Invalidate(userID int64) {
	s.cache.Delete(dashboardCacheKey(userID))
}

// GetSummary returns the user's dashboard aggregates, cached until the next
// mutation or TTL expiry.
func (s *DashboardService) GetSummary(userID int64) (*DashboardSummary, error) {
	if cached, found := s.cache.Get(dashboardCacheKey(userID)); found {
		if summary, ok := cached.(*DashboardSummary); ok {
			logger.L.Debug("Dashboard summary served from cache", "userID", userID)
			return summary, nil
		}
	}

	summary, err := s.computeSummary(userID)
	if err != nil {
		return nil, err
	}
	s.cache.SetDefault(dashboardCacheKey(userID), summary)
	return summary, nil
}

func (s *DashboardService) computeSummary(userID int64) (*DashboardSummary, error) {
	clients, err := model.ListClientsByUser(s.db, userID)
	if err != nil {
		return nil, fmt.Errorf("listing clients: %w", err)
	}
	investments, err := model.ListInvestmentsByUser(s.db, userID)
	if err != nil {
		return nil, fmt.Errorf("listing investments: %w", err)
	}
	transactions, err := model.ListTransactionsByUser(s.db, userID)
	if err != nil {
		return nil, fmt.Errorf("listing transactions: %w", err)
	}
	recentClients, err := model.ListRecentClientsByUser(s.db, userID, recentItemsLimit)
	if err != nil {
		return nil, fmt.Errorf("listing recent clients: %w", err)
	}
	totalCash, err := model.SumCashPositionsByUser(s.db, userID)
	if err != nil {
		return nil, fmt.Errorf("summing cash positions: %w", err)
	}

	summary := &DashboardSummary{
		TotalClients:      len(clients),
		TotalInvestments:  len(investments),
		TotalTransactions: len(transactions),
		TotalValue:        decimal.Zero,
		TotalCost:         decimal.Zero,
		TotalCashPosition: totalCash,
		TotalLots:         decimal.Zero,
		StockLots:         []StockLotSummary{},
		RecentClients:     recentClients,
	}

	if len(transactions) > recentItemsLimit {
		summary.RecentTransaction = transactions[:recentItemsLimit]
	} else {
		summary.RecentTransaction = transactions
	}

	lotsBySymbol := map[string]int{} // symbol -> index into StockLots
	for _, inv := range investments {
		cost := inv.AcquisitionCost.Mul(inv.QuantityLots)
		summary.TotalCost = summary.TotalCost.Add(cost)
		if inv.CurrentValue.Valid {
			summary.TotalValue = summary.TotalValue.Add(inv.CurrentValue.Decimal.Mul(inv.QuantityLots))
		}
		summary.TotalLots = summary.TotalLots.Add(inv.QuantityLots)

		symbol := inv.StockSymbol
		if symbol == "" {
			symbol = inv.StockName
		}
		if idx, ok := lotsBySymbol[symbol]; ok {
			summary.StockLots[idx].Lots = summary.StockLots[idx].Lots.Add(inv.QuantityLots)
		} else {
			lotsBySymbol[symbol] = len(summary.StockLots)
			summary.StockLots = append(summary.StockLots, StockLotSummary{
				Symbol: symbol,
				Name:   inv.StockName,
				Lots:   inv.QuantityLots,
			})
		}
	}
	summary.TotalProfitLoss = summary.TotalValue.Sub(summary.TotalCost)

	return summary, nil
}
