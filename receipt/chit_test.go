package receipt

import (
	"bytes"
	"testing"
	"time"

	"clubpos/cart"
	"clubpos/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChitRendersPDF(t *testing.T) {
	table := "t1"
	notes := "no ice\nextra lime"
	order := models.Order{OrderID: "o1", TableID: &table, CustomerName: "Ana", Total: 39000, CreatedAt: time.Now()}
	items := []models.OrderItem{
		{ItemID: "i1", ProductID: "a", Quantity: 2, Status: models.ItemPreparing, Notes: &notes},
		{ItemID: "i2", ProductID: "missing", Quantity: 1, Status: models.ItemPending},
	}
	products := cart.IndexProducts([]models.Product{{ProductID: "a", Name: "Mojito", Price: 12000}})

	pdf, err := Chit(order, items, products, "Terrace 1")
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(pdf, []byte("%PDF")))
}

func TestFormatMoney(t *testing.T) {
	assert.Equal(t, "390.00", FormatMoney(39000))
	assert.Equal(t, "0.05", FormatMoney(5))
	assert.Equal(t, "-1.50", FormatMoney(-150))
}
