package document

import (
	"net/http"
	"strconv"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	ctxutil "github.com/Ramsey-B/fern/pkg/context"
	"github.com/Ramsey-B/fern/pkg/documents"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

var validate = validator.New()

// Register registers document routes under a collection group
func Register(g *echo.Group) {
	g.GET("", List)
	g.POST("", Create)
	g.GET("/:docId", Get)
	g.PATCH("/:docId/attributes", UpdateAttributes)
	g.DELETE("/:docId", Delete)
	g.POST("/:docId/relationships/:name", AddRelated)
	g.DELETE("/:docId/relationships/:name/:relatedId", RemoveRelated)
	g.DELETE("/:docId/relationships/:name", ClearRelationship)
	g.GET("/:docId/operations", Operations)
}

// List returns the materialized live documents of a collection
func List(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "document_handler.List")
	defer span.End()

	projectID := ctxutil.GetProjectID(ctx)
	if projectID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "project_id is required")
	}

	collectionID := c.Param("id")

	page, _ := strconv.Atoi(c.QueryParam("page"))
	pageSize, _ := strconv.Atoi(c.QueryParam("page_size"))

	ctx, svc, err := ectoinject.GetContext[*documents.Service](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get document service")
	}

	result, err := svc.List(ctx, projectID, collectionID, page, pageSize)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, result)
}

// Create creates a document
func Create(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "document_handler.Create")
	defer span.End()

	projectID := ctxutil.GetProjectID(ctx)
	if projectID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "project_id is required")
	}

	collectionID := c.Param("id")

	var req models.CreateDocumentRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	ctx, svc, err := ectoinject.GetContext[*documents.Service](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get document service")
	}

	result, err := svc.Create(ctx, projectID, collectionID, req)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, result)
}

// Get returns the materialized state of a live document
func Get(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "document_handler.Get")
	defer span.End()

	projectID := ctxutil.GetProjectID(ctx)
	if projectID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "project_id is required")
	}

	collectionID := c.Param("id")
	documentID := c.Param("docId")

	ctx, svc, err := ectoinject.GetContext[*documents.Service](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get document service")
	}

	result, err := svc.Get(ctx, projectID, collectionID, documentID)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, result)
}

// UpdateAttributes writes document attribute values
func UpdateAttributes(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "document_handler.UpdateAttributes")
	defer span.End()

	projectID := ctxutil.GetProjectID(ctx)
	if projectID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "project_id is required")
	}

	collectionID := c.Param("id")
	documentID := c.Param("docId")

	var req models.UpdateAttributesRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx, svc, err := ectoinject.GetContext[*documents.Service](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get document service")
	}

	result, err := svc.UpdateAttributes(ctx, projectID, collectionID, documentID, req)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, result)
}

// Delete tombstones a document
func Delete(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "document_handler.Delete")
	defer span.End()

	projectID := ctxutil.GetProjectID(ctx)
	if projectID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "project_id is required")
	}

	collectionID := c.Param("id")
	documentID := c.Param("docId")

	ctx, svc, err := ectoinject.GetContext[*documents.Service](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get document service")
	}

	if err := svc.Delete(ctx, projectID, collectionID, documentID); err != nil {
		return err
	}

	return c.NoContent(http.StatusNoContent)
}

// AddRelated links a related document
func AddRelated(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "document_handler.AddRelated")
	defer span.End()

	projectID := ctxutil.GetProjectID(ctx)
	if projectID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "project_id is required")
	}

	collectionID := c.Param("id")
	documentID := c.Param("docId")
	name := c.Param("name")

	var req models.RelateDocumentRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx, svc, err := ectoinject.GetContext[*documents.Service](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get document service")
	}

	result, err := svc.AddRelated(ctx, projectID, collectionID, documentID, name, req.RelatedDocumentID)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, result)
}

// RemoveRelated unlinks one related document
func RemoveRelated(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "document_handler.RemoveRelated")
	defer span.End()

	projectID := ctxutil.GetProjectID(ctx)
	if projectID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "project_id is required")
	}

	collectionID := c.Param("id")
	documentID := c.Param("docId")
	name := c.Param("name")
	relatedID := c.Param("relatedId")

	ctx, svc, err := ectoinject.GetContext[*documents.Service](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get document service")
	}

	result, err := svc.RemoveRelated(ctx, projectID, collectionID, documentID, name, relatedID)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, result)
}

// ClearRelationship empties a relationship: has_one resets to null, has_many
// resets to an empty list
func ClearRelationship(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "document_handler.ClearRelationship")
	defer span.End()

	projectID := ctxutil.GetProjectID(ctx)
	if projectID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "project_id is required")
	}

	collectionID := c.Param("id")
	documentID := c.Param("docId")
	name := c.Param("name")

	ctx, svc, err := ectoinject.GetContext[*documents.Service](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get document service")
	}

	result, err := svc.ClearRelationship(ctx, projectID, collectionID, documentID, name)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, result)
}

// Operations returns a document's change feed
func Operations(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "document_handler.Operations")
	defer span.End()

	projectID := ctxutil.GetProjectID(ctx)
	if projectID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "project_id is required")
	}

	collectionID := c.Param("id")
	documentID := c.Param("docId")

	ctx, svc, err := ectoinject.GetContext[*documents.Service](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get document service")
	}

	result, err := svc.Operations(ctx, projectID, collectionID, documentID)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, result)
}
