package web

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	mailbeacon "github.com/bl4ckh4nd/MailBeacon"
)

// contactRequest mirrors mailbeacon.Contact on the wire. company_domain is
// an accepted alias for domain.
type contactRequest struct {
	FirstName     string `json:"first_name"`
	LastName      string `json:"last_name"`
	FullName      string `json:"full_name"`
	Domain        string `json:"domain"`
	CompanyDomain string `json:"company_domain"`
	Company       string `json:"company"`
}

func (r contactRequest) toContact() mailbeacon.Contact {
	domain := r.Domain
	if domain == "" {
		domain = r.CompanyDomain
	}
	return mailbeacon.Contact{
		FirstName: r.FirstName,
		LastName:  r.LastName,
		FullName:  r.FullName,
		Domain:    domain,
		Company:   r.Company,
	}
}

type batchRequest struct {
	Contacts []contactRequest `json:"contacts"`
}

// errorBody is the error envelope for all non-2xx responses.
type errorBody struct {
	Detail string `json:"detail"`
}

type handlers struct {
	proc    *mailbeacon.Processor
	appName string
}

func (h *handlers) root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": fmt.Sprintf("Welcome to %s.", h.appName)})
}

func (h *handlers) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// findSingle runs discovery for one contact. Invalid input maps to 400 and
// discovery failures to the status suggested by their error kind; found and
// not_found results are both 200 with the full envelope.
func (h *handlers) findSingle(c *gin.Context) {
	var req contactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody{Detail: "invalid request body: " + err.Error()})
		return
	}

	res := h.proc.ProcessContact(c.Request.Context(), req.toContact())
	switch res.Status {
	case mailbeacon.StatusSkipped:
		c.JSON(mailbeacon.HTTPStatusOf(res.Err), errorBody{Detail: res.SkipReason})
	case mailbeacon.StatusError:
		c.JSON(mailbeacon.HTTPStatusOf(res.Err), errorBody{Detail: res.Error})
	default:
		c.JSON(http.StatusOK, res)
	}
}

// findBatch runs discovery for a list of contacts. The response is always a
// 200 with one envelope per input contact in input order; per-contact
// failures are reported inside their envelope, never as an HTTP error.
func (h *handlers) findBatch(c *gin.Context) {
	var req batchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody{Detail: "invalid request body: " + err.Error()})
		return
	}

	contacts := make([]mailbeacon.Contact, 0, len(req.Contacts))
	for _, r := range req.Contacts {
		contacts = append(contacts, r.toContact())
	}

	c.JSON(http.StatusOK, h.proc.ProcessBatch(c.Request.Context(), contacts))
}
