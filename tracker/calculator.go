package tracker

import (
	"mabletask/tracker/models"
	"mabletask/tracker/utils"
)

// recalcRatios updates the idle and cart-to-detail ratios.
func recalcRatios(m *models.SessionMetrics) {
	total := m.Internal.TotalSeconds
	if total > 0 {
		idle := total - m.Internal.ActiveSeconds
		m.Calculated.IdleTimeRatio = utils.Round2(float64(idle) / float64(total))
	} else {
		m.Calculated.IdleTimeRatio = 0
	}

	if views := m.Ecommerce.ViewedProductCount; views > 0 {
		m.Calculated.CartToDetailRatio = utils.Round2(float64(m.Ecommerce.CartAddsCount) / float64(views))
	} else {
		m.Calculated.CartToDetailRatio = 0
	}
}

// recalcAvgTimePerPage averages dwell time over completed visits. The open
// page does not count until the visitor leaves it.
func recalcAvgTimePerPage(m *models.SessionMetrics) {
	var sum float64
	var n int
	for _, v := range m.Internal.PageHistory {
		if v.Completed {
			sum += v.TimeOnPage
			n++
		}
	}
	if n > 0 {
		m.Behavior.AvgTimePerPage = sum / float64(n)
	}
}

func recalcAvgPrice(m *models.SessionMetrics) {
	prices := m.Internal.ProductPrices
	if len(prices) == 0 {
		return
	}
	var sum float64
	for _, p := range prices {
		sum += p
	}
	m.Ecommerce.AvgPriceViewed = sum / float64(len(prices))
}
