package controllers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/agriconnect/agriconnect-api/models"
	"github.com/agriconnect/agriconnect-api/services"
)

func setupCartRouter(user *models.User) (*gin.Engine, *services.MockCartService) {
	cart := services.NewMockCartService()
	services.SetCartService(cart)

	router := setupTestRouter()
	router.GET("/cart", testAuthMiddleware(user, nil), GetCart)
	router.PUT("/cart/items", testAuthMiddleware(user, nil), PutCartItem)
	router.DELETE("/cart/items/:productID", testAuthMiddleware(user, nil), RemoveCartItem)
	router.DELETE("/cart", testAuthMiddleware(user, nil), ClearCart)
	return router, cart
}

func TestCartLifecycle(t *testing.T) {
	consumer := models.User{FullName: "Ravi Kumar", Email: "ravi@example.com", Role: models.RoleConsumer}
	consumer.ID = 1
	router, _ := setupCartRouter(&consumer)

	putLine := func(productID uint, quantity int) (*httptest.ResponseRecorder, map[string]interface{}) {
		raw, _ := json.Marshal(map[string]interface{}{"product_id": productID, "quantity": quantity})
		req, _ := http.NewRequest(http.MethodPut, "/cart/items", bytes.NewBuffer(raw))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		var response map[string]interface{}
		json.Unmarshal(w.Body.Bytes(), &response)
		return w, response
	}

	// Add two lines
	w, response := putLine(10, 2)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, response["data"].([]interface{}), 1)

	w, response = putLine(11, 5)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, response["data"].([]interface{}), 2)

	// Replacing a line updates the quantity in place
	w, response = putLine(10, 7)
	assert.Equal(t, http.StatusOK, w.Code)
	lines := response["data"].([]interface{})
	assert.Len(t, lines, 2)
	first := lines[0].(map[string]interface{})
	assert.Equal(t, float64(10), first["product_id"])
	assert.Equal(t, float64(7), first["quantity"])

	// Read the cart back
	req, _ := http.NewRequest(http.MethodGet, "/cart", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	json.Unmarshal(w.Body.Bytes(), &response)
	assert.Len(t, response["data"].([]interface{}), 2)

	// Remove one line
	req, _ = http.NewRequest(http.MethodDelete, "/cart/items/10", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	json.Unmarshal(w.Body.Bytes(), &response)
	assert.Len(t, response["data"].([]interface{}), 1)

	// Clear everything
	req, _ = http.NewRequest(http.MethodDelete, "/cart", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	req, _ = http.NewRequest(http.MethodGet, "/cart", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	json.Unmarshal(w.Body.Bytes(), &response)
	assert.Empty(t, response["data"].([]interface{}))
}

func TestPutCartItem_Validation(t *testing.T) {
	consumer := models.User{FullName: "Ravi Kumar", Email: "ravi@example.com", Role: models.RoleConsumer}
	consumer.ID = 1
	router, _ := setupCartRouter(&consumer)

	raw, _ := json.Marshal(map[string]interface{}{"product_id": 10, "quantity": 0})
	req, _ := http.NewRequest(http.MethodPut, "/cart/items", bytes.NewBuffer(raw))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	var response map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &response)
	errorData := response["error"].(map[string]interface{})
	assert.Equal(t, "VALIDATION_ERROR", errorData["code"])
}

func TestCart_Unconfigured(t *testing.T) {
	consumer := models.User{FullName: "Ravi Kumar", Email: "ravi@example.com", Role: models.RoleConsumer}
	consumer.ID = 1

	services.SetCartService(nil)
	router := setupTestRouter()
	router.GET("/cart", testAuthMiddleware(&consumer, nil), GetCart)

	req, _ := http.NewRequest(http.MethodGet, "/cart", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	var response map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &response)
	errorData := response["error"].(map[string]interface{})
	assert.Equal(t, "CART_UNAVAILABLE", errorData["code"])
}
