package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/wyfcoding/contractpricing/internal/valuation/application"
	"github.com/wyfcoding/contractpricing/internal/valuation/domain"
	"github.com/wyfcoding/contractpricing/pkg/logger"
)

// HTTP 处理器
// 负责处理合约估值相关的 HTTP 请求
type ValuationHandler struct {
	service *application.ValuationAppService
}

// 创建 HTTP 处理器实例
func NewValuationHandler(service *application.ValuationAppService) *ValuationHandler {
	return &ValuationHandler{service: service}
}

// 注册路由
// 将处理器方法绑定到 Gin 路由引擎
func (h *ValuationHandler) RegisterRoutes(router *gin.Engine) {
	api := router.Group("/api/v1/valuation")
	{
		api.POST("/value", h.ValueContract)
		api.POST("/greeks", h.Greeks)
		api.POST("/option", h.PriceOption)
		api.POST("/portfolio", h.ValuePortfolio)
		api.POST("/lawcheck", h.LawCheck)
		api.GET("/history/:fingerprint", h.History)
	}
}

// ValueContract 对任意合约树估值
func (h *ValuationHandler) ValueContract(c *gin.Context) {
	var req application.ValueContractRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}

	dto, err := h.service.ValueContract(c.Request.Context(), &req)
	if err != nil {
		h.fromDomainError(c, err)
		return
	}
	ok(c, dto)
}

// Greeks 对任意合约树估值并返回风险敏感度
func (h *ValuationHandler) Greeks(c *gin.Context) {
	var req application.ValueContractRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}
	req.WithGreeks = true

	dto, err := h.service.ValueContract(c.Request.Context(), &req)
	if err != nil {
		h.fromDomainError(c, err)
		return
	}
	ok(c, dto)
}

// PriceOption 标准期权便捷定价
func (h *ValuationHandler) PriceOption(c *gin.Context) {
	var req application.PriceOptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}

	dto, err := h.service.PriceOption(c.Request.Context(), &req)
	if err != nil {
		h.fromDomainError(c, err)
		return
	}
	ok(c, dto)
}

// ValuePortfolio 组合估值
func (h *ValuationHandler) ValuePortfolio(c *gin.Context) {
	var req application.PortfolioRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}

	dto, err := h.service.ValuePortfolio(c.Request.Context(), &req)
	if err != nil {
		h.fromDomainError(c, err)
		return
	}
	ok(c, dto)
}

// LawCheck 随机合约代数律检验
func (h *ValuationHandler) LawCheck(c *gin.Context) {
	var req application.LawCheckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}

	dto, err := h.service.RunLawCheck(c.Request.Context(), &req)
	if err != nil {
		h.fromDomainError(c, err)
		return
	}
	ok(c, dto)
}

// History 按指纹查询历史估值
func (h *ValuationHandler) History(c *gin.Context) {
	fingerprint := c.Param("fingerprint")
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	dtos, err := h.service.GetHistory(c.Request.Context(), fingerprint, limit)
	if err != nil {
		h.fromDomainError(c, err)
		return
	}
	ok(c, dtos)
}

// fromDomainError 将领域 sentinel 错误映射为 HTTP 状态码
func (h *ValuationHandler) fromDomainError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrMalformedContract),
		errors.Is(err, domain.ErrBooleanObservable):
		fail(c, http.StatusBadRequest, err)
	case errors.Is(err, domain.ErrUnknownUnderlying),
		errors.Is(err, domain.ErrMarketIncomplete),
		errors.Is(err, domain.ErrCurrencyMismatch),
		errors.Is(err, domain.ErrNumericDomain),
		errors.Is(err, domain.ErrUnsupportedApproximation),
		errors.Is(err, domain.ErrDepthExceeded):
		fail(c, http.StatusUnprocessableEntity, err)
	default:
		logger.Error(c.Request.Context(), "valuation request failed", "error", err)
		fail(c, http.StatusInternalServerError, err)
	}
}

func ok(c *gin.Context, data any) {
	c.JSON(http.StatusOK, gin.H{
		"code": 0,
		"data": data,
	})
}

func fail(c *gin.Context, status int, err error) {
	c.JSON(status, gin.H{
		"code":    status,
		"message": err.Error(),
	})
}
