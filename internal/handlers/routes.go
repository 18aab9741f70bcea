package handlers

import "github.com/labstack/echo/v4"

func RegisterRoutes(e *echo.Echo, priceLists *PriceListHandlers, health *HealthHandlers) {
	e.GET("/health", health.HealthCheck)

	v1 := e.Group("/api/v1")
	pl := v1.Group("/price-lists")
	pl.POST("", priceLists.CreatePriceList)
	pl.GET("", priceLists.ListPriceLists)
	pl.GET("/:id", priceLists.GetPriceList)
	pl.DELETE("/:id", priceLists.DeletePriceList)
	pl.GET("/:id/items", priceLists.ListItems)
	pl.GET("/:id/file", priceLists.GetFileURL)
	pl.POST("/:id/process", priceLists.Process)
	pl.POST("/:id/activate", priceLists.Activate)
	pl.POST("/:id/deactivate", priceLists.Deactivate)
	pl.POST("/:id/replace", priceLists.Replace)
}
