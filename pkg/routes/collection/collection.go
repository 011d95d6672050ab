package collection

import (
	"net/http"
	"strconv"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fern/internal/repositories/collection"
	ctxutil "github.com/Ramsey-B/fern/pkg/context"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/schema"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

var validate = validator.New()

// Register registers collection and schema routes
func Register(g *echo.Group) {
	g.GET("", List)
	g.POST("", Create)
	g.GET("/:id", Get)
	g.DELETE("/:id", Delete)
	g.GET("/:id/schema", GetSchema)
	g.POST("/:id/attributes", DefineAttribute)
	g.DELETE("/:id/attributes/:name", DeleteAttribute)
	g.POST("/:id/relationships", DefineRelationship)
	g.PUT("/:id/relationships/:name", RenameRelationship)
	g.PUT("/:id/relationships/:name/inverse", SetInverse)
	g.DELETE("/:id/relationships/:name", DeleteRelationship)
}

// List returns all collections for the project
func List(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "collection_handler.List")
	defer span.End()

	projectID := ctxutil.GetProjectID(ctx)
	if projectID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "project_id is required")
	}

	page, _ := strconv.Atoi(c.QueryParam("page"))
	pageSize, _ := strconv.Atoi(c.QueryParam("page_size"))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}

	ctx, repo, err := ectoinject.GetContext[*collection.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
	}

	items, totalCount, err := repo.List(ctx, projectID, page, pageSize)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to list collections")
	}

	return c.JSON(http.StatusOK, models.CollectionListResponse{
		Items:      items,
		TotalCount: totalCount,
		Page:       page,
		PageSize:   pageSize,
	})
}

// Create creates a new collection
func Create(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "collection_handler.Create")
	defer span.End()

	projectID := ctxutil.GetProjectID(ctx)
	if projectID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "project_id is required")
	}

	var req models.CreateCollectionRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx, repo, err := ectoinject.GetContext[*collection.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
	}

	existing, err := repo.GetByName(ctx, projectID, req.Name)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to check existing collection")
	}
	if existing != nil {
		return httperror.NewHTTPError(http.StatusConflict, "collection with this name already exists")
	}

	result, err := repo.Create(ctx, projectID, req)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to create collection")
	}

	return c.JSON(http.StatusCreated, models.CollectionResponse{Collection: *result})
}

// Get returns a single collection by ID
func Get(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "collection_handler.Get")
	defer span.End()

	projectID := ctxutil.GetProjectID(ctx)
	if projectID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "project_id is required")
	}
	id := c.Param("id")

	ctx, repo, err := ectoinject.GetContext[*collection.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
	}

	result, err := repo.GetByID(ctx, projectID, id)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get collection")
	}
	if result == nil {
		return httperror.NewHTTPError(http.StatusNotFound, "collection not found")
	}

	return c.JSON(http.StatusOK, models.CollectionResponse{Collection: *result})
}

// Delete soft deletes a collection
func Delete(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "collection_handler.Delete")
	defer span.End()

	projectID := ctxutil.GetProjectID(ctx)
	if projectID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "project_id is required")
	}

	id := c.Param("id")

	ctx, repo, err := ectoinject.GetContext[*collection.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
	}

	existing, err := repo.GetByID(ctx, projectID, id)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get collection")
	}
	if existing == nil {
		return httperror.NewHTTPError(http.StatusNotFound, "collection not found")
	}

	if err := repo.Delete(ctx, projectID, id); err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to delete collection")
	}

	return c.NoContent(http.StatusNoContent)
}

// GetSchema returns the current schema projection of a collection
func GetSchema(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "collection_handler.GetSchema")
	defer span.End()

	projectID := ctxutil.GetProjectID(ctx)
	if projectID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "project_id is required")
	}

	id := c.Param("id")

	ctx, svc, err := ectoinject.GetContext[*schema.Service](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get schema service")
	}

	result, err := svc.Schema(ctx, projectID, id)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, result)
}

// DefineAttribute defines a typed attribute on a collection
func DefineAttribute(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "collection_handler.DefineAttribute")
	defer span.End()

	projectID := ctxutil.GetProjectID(ctx)
	if projectID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "project_id is required")
	}

	id := c.Param("id")

	var req models.CreateAttributeRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx, svc, err := ectoinject.GetContext[*schema.Service](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get schema service")
	}

	result, err := svc.DefineAttribute(ctx, projectID, id, req)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, result)
}

// DeleteAttribute deletes an attribute definition by name
func DeleteAttribute(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "collection_handler.DeleteAttribute")
	defer span.End()

	projectID := ctxutil.GetProjectID(ctx)
	if projectID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "project_id is required")
	}

	id := c.Param("id")
	name := c.Param("name")

	ctx, svc, err := ectoinject.GetContext[*schema.Service](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get schema service")
	}

	if err := svc.DeleteAttribute(ctx, projectID, id, name); err != nil {
		return err
	}

	return c.NoContent(http.StatusNoContent)
}

// DefineRelationship defines a relationship and, optionally, its inverse
func DefineRelationship(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "collection_handler.DefineRelationship")
	defer span.End()

	projectID := ctxutil.GetProjectID(ctx)
	if projectID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "project_id is required")
	}

	id := c.Param("id")

	var req models.CreateRelationshipRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx, svc, err := ectoinject.GetContext[*schema.Service](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get schema service")
	}

	result, err := svc.DefineRelationship(ctx, projectID, id, req)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, result)
}

// RenameRelationship renames a relationship
func RenameRelationship(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "collection_handler.RenameRelationship")
	defer span.End()

	projectID := ctxutil.GetProjectID(ctx)
	if projectID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "project_id is required")
	}

	id := c.Param("id")
	name := c.Param("name")

	var req models.RenameRelationshipRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx, svc, err := ectoinject.GetContext[*schema.Service](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get schema service")
	}

	result, err := svc.RenameRelationship(ctx, projectID, id, name, req.Name)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, result)
}

// SetInverse renames or removes a relationship's inverse
func SetInverse(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "collection_handler.SetInverse")
	defer span.End()

	projectID := ctxutil.GetProjectID(ctx)
	if projectID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "project_id is required")
	}

	id := c.Param("id")
	name := c.Param("name")

	var req models.SetInverseRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	ctx, svc, err := ectoinject.GetContext[*schema.Service](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get schema service")
	}

	result, err := svc.SetInverse(ctx, projectID, id, name, req.Inverse)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, result)
}

// DeleteRelationship deletes a relationship and its paired inverse
func DeleteRelationship(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "collection_handler.DeleteRelationship")
	defer span.End()

	projectID := ctxutil.GetProjectID(ctx)
	if projectID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "project_id is required")
	}

	id := c.Param("id")
	name := c.Param("name")

	ctx, svc, err := ectoinject.GetContext[*schema.Service](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get schema service")
	}

	if err := svc.DeleteRelationship(ctx, projectID, id, name); err != nil {
		return err
	}

	return c.NoContent(http.StatusNoContent)
}
