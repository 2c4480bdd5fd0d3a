package server

import (
	"fmt"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/xuri/excelize/v2"

	"github.com/opsboard/opsboard/internal/platform/excel"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func (h *Handler) registerExchangeRoutes(api *echo.Group) {
	api.GET("/export/patients", h.ExportPatients)
	api.GET("/export/records", h.ExportRecords)
	api.GET("/export/staff", h.ExportStaff)
	api.GET("/export/resources", h.ExportResources)
	api.GET("/export/all", h.ExportAll)

	api.POST("/import/patients", h.ImportPatients)
	api.POST("/import/records", h.ImportRecords)
	api.POST("/import/staff", h.ImportStaff)

	api.GET("/templates/patients", h.PatientTemplate)
	api.GET("/templates/records", h.RecordTemplate)
	api.GET("/templates/staff", h.StaffTemplate)
}

// sendWorkbook streams a workbook as an xlsx attachment.
func sendWorkbook(c echo.Context, f *excelize.File, filename string) error {
	defer f.Close()
	c.Response().Header().Set(echo.HeaderContentDisposition,
		fmt.Sprintf(`attachment; filename=%q`, filename))
	c.Response().Header().Set(echo.HeaderContentType, xlsxContentType)
	c.Response().WriteHeader(http.StatusOK)
	return f.Write(c.Response())
}

// ---------------------------------------------------------------------------
// Exports
// ---------------------------------------------------------------------------

func (h *Handler) ExportPatients(c echo.Context) error {
	f, err := excel.ExportPatients(h.sync.Patients())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return sendWorkbook(c, f, "patients.xlsx")
}

func (h *Handler) ExportRecords(c echo.Context) error {
	f, err := excel.ExportRecords(h.sync.Records())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return sendWorkbook(c, f, "medical_records.xlsx")
}

func (h *Handler) ExportStaff(c echo.Context) error {
	f, err := excel.ExportStaff(h.sync.Staff())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return sendWorkbook(c, f, "staff.xlsx")
}

func (h *Handler) ExportResources(c echo.Context) error {
	f, err := excel.ExportResources(h.sync.Resources())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return sendWorkbook(c, f, "resources.xlsx")
}

func (h *Handler) ExportAll(c echo.Context) error {
	f, err := excel.ExportAll(h.sync.Patients(), h.sync.Records(), h.sync.Staff(), h.sync.Resources())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return sendWorkbook(c, f, "hospital_export.xlsx")
}

// ---------------------------------------------------------------------------
// Imports
// ---------------------------------------------------------------------------

type importResponse struct {
	Imported int `json:"imported"`
	Dropped  int `json:"dropped"`
}

// ImportPatients parses an uploaded workbook and bulk-creates the valid
// rows. Rows missing required fields are silently dropped and only counted.
func (h *Handler) ImportPatients(c echo.Context) error {
	file, err := openUpload(c)
	if err != nil {
		return err
	}
	defer file.Close()

	inputs, dropped, err := excel.ImportPatients(file)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.gw.BulkAddPatients(c.Request().Context(), inputs); err != nil {
		return writeError(err)
	}
	h.log.Info().Int("imported", len(inputs)).Int("dropped", dropped).Msg("patients imported")
	return c.JSON(http.StatusOK, importResponse{Imported: len(inputs), Dropped: dropped})
}

func (h *Handler) ImportRecords(c echo.Context) error {
	file, err := openUpload(c)
	if err != nil {
		return err
	}
	defer file.Close()

	inputs, dropped, err := excel.ImportRecords(file)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.gw.BulkAddRecords(c.Request().Context(), inputs); err != nil {
		return writeError(err)
	}
	h.log.Info().Int("imported", len(inputs)).Int("dropped", dropped).Msg("records imported")
	return c.JSON(http.StatusOK, importResponse{Imported: len(inputs), Dropped: dropped})
}

func (h *Handler) ImportStaff(c echo.Context) error {
	file, err := openUpload(c)
	if err != nil {
		return err
	}
	defer file.Close()

	inputs, dropped, err := excel.ImportStaff(file)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.gw.BulkAddStaff(c.Request().Context(), inputs); err != nil {
		return writeError(err)
	}
	h.log.Info().Int("imported", len(inputs)).Int("dropped", dropped).Msg("staff imported")
	return c.JSON(http.StatusOK, importResponse{Imported: len(inputs), Dropped: dropped})
}

// openUpload returns the "file" part of a multipart upload.
func openUpload(c echo.Context) (io.ReadCloser, error) {
	fh, err := c.FormFile("file")
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "multipart field 'file' is required")
	}
	f, err := fh.Open()
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return f, nil
}

// ---------------------------------------------------------------------------
// Templates
// ---------------------------------------------------------------------------

func (h *Handler) PatientTemplate(c echo.Context) error {
	f, err := excel.PatientTemplate()
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return sendWorkbook(c, f, "patient_import_template.xlsx")
}

func (h *Handler) RecordTemplate(c echo.Context) error {
	f, err := excel.RecordTemplate()
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return sendWorkbook(c, f, "record_import_template.xlsx")
}

func (h *Handler) StaffTemplate(c echo.Context) error {
	f, err := excel.StaffTemplate()
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return sendWorkbook(c, f, "staff_import_template.xlsx")
}
