package main

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	actorHeader  = "X-Actor-ID"
	listPageSize = 100
)

type stockLine struct {
	ID       string `json:"id"`
	Quantity int64  `json:"quantity"`
}

type reserveBody struct {
	OrderID        string      `json:"orderId"`
	Items          []stockLine `json:"items"`
	TimeoutMinutes int         `json:"timeoutMinutes,omitempty"`
}

type productView struct {
	ID            string `json:"id"`
	StockQuantity int64  `json:"stockQuantity"`
}

type productList struct {
	Products []productView `json:"products"`
}

// stockClient — REST-клиент сервиса остатков.
type stockClient struct {
	http *resty.Client
}

func newStockClient(baseURL string, timeout time.Duration, actor string) *stockClient {
	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader(actorHeader, actor)
	return &stockClient{http: client}
}

func (c *stockClient) setStock(ctx context.Context, productID string, quantity int64) (*resty.Response, error) {
	return c.http.R().
		SetContext(ctx).
		SetPathParam("productId", productID).
		SetBody(map[string]any{"stockQuantity": quantity, "reason": "load test baseline"}).
		Put("/inventory/{productId}")
}

func (c *stockClient) reserve(ctx context.Context, orderID, productID string, quantity int64, ttlMinutes int) (*resty.Response, error) {
	return c.http.R().
		SetContext(ctx).
		SetBody(reserveBody{
			OrderID:        orderID,
			Items:          []stockLine{{ID: productID, Quantity: quantity}},
			TimeoutMinutes: ttlMinutes,
		}).
		Post("/inventory/reservations")
}

func (c *stockClient) release(ctx context.Context, orderID string) (*resty.Response, error) {
	return c.http.R().
		SetContext(ctx).
		SetPathParam("orderId", orderID).
		Delete("/inventory/reservations/{orderId}")
}

func (c *stockClient) validate(ctx context.Context, productID string, quantity int64) (*resty.Response, error) {
	return c.http.R().
		SetContext(ctx).
		SetBody(map[string]any{"items": []stockLine{{ID: productID, Quantity: quantity}}}).
		Post("/inventory/validate")
}

// stock листает каталог, пока не найдёт товар.
func (c *stockClient) stock(ctx context.Context, productID string) (int64, error) {
	for offset := 0; ; offset += listPageSize {
		var page productList
		resp, err := c.http.R().
			SetContext(ctx).
			SetQueryParams(map[string]string{
				"limit":  strconv.Itoa(listPageSize),
				"offset": strconv.Itoa(offset),
			}).
			SetResult(&page).
			Get("/inventory")
		if err != nil {
			return 0, fmt.Errorf("list products: %w", err)
		}
		if resp.StatusCode() != http.StatusOK {
			return 0, fmt.Errorf("list products: unexpected status %d", resp.StatusCode())
		}
		for _, p := range page.Products {
			if p.ID == productID {
				return p.StockQuantity, nil
			}
		}
		if len(page.Products) < listPageSize {
			return 0, fmt.Errorf("product %s not found", productID)
		}
	}
}

// classify переводит ответ в итог вызова. 409 считается штатным отказом по остатку.
func classify(resp *resty.Response, err error, want int) (string, outcome) {
	if err != nil {
		return "transport_error", outcomeFailed
	}
	status := strconv.Itoa(resp.StatusCode())
	switch resp.StatusCode() {
	case want:
		return status, outcomeSuccess
	case http.StatusConflict:
		return status, outcomeRejected
	default:
		return status, outcomeFailed
	}
}
