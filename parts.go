package excelts

import "fmt"

// Container entry paths. Worksheet parts are numbered from 1.
const (
	pathContentTypes  = "[Content_Types].xml"
	pathRootRels      = "_rels/.rels"
	pathWorkbook      = "xl/workbook.xml"
	pathWorkbookRels  = "xl/_rels/workbook.xml.rels"
	pathSharedStrings = "xl/sharedStrings.xml"
	pathStyles        = "xl/styles.xml"
)

func sheetPath(n int) string {
	return fmt.Sprintf("xl/worksheets/sheet%d.xml", n)
}

func sheetRelsPath(sheetEntry string) string {
	// xl/worksheets/sheet1.xml -> xl/worksheets/_rels/sheet1.xml.rels
	dir, file := splitEntryPath(sheetEntry)
	return dir + "_rels/" + file + ".rels"
}

func splitEntryPath(p string) (dir, file string) {
	for i := len(p) - 1; i >= 0; i-- {
		if p[i] == '/' {
			return p[:i+1], p[i+1:]
		}
	}
	return "", p
}

// Markup namespaces.
const (
	nsSpreadsheet  = "http://schemas.openxmlformats.org/spreadsheetml/2006/main"
	nsDocRels      = "http://schemas.openxmlformats.org/officeDocument/2006/relationships"
	nsPackageRels  = "http://schemas.openxmlformats.org/package/2006/relationships"
	nsContentTypes = "http://schemas.openxmlformats.org/package/2006/content-types"
)

// Relationship types.
const (
	relTypeOfficeDocument = nsDocRels + "/officeDocument"
	relTypeWorksheet      = nsDocRels + "/worksheet"
	relTypeSharedStrings  = nsDocRels + "/sharedStrings"
	relTypeStyles         = nsDocRels + "/styles"
	relTypeHyperlink      = nsDocRels + "/hyperlink"
)

// Content types.
const (
	ctRelationships = "application/vnd.openxmlformats-package.relationships+xml"
	ctWorkbook      = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet.main+xml"
	ctWorksheet     = "application/vnd.openxmlformats-officedocument.spreadsheetml.worksheet+xml"
	ctSharedStrings = "application/vnd.openxmlformats-officedocument.spreadsheetml.sharedStrings+xml"
	ctStyles        = "application/vnd.openxmlformats-officedocument.spreadsheetml.styles+xml"
	ctXML           = "application/xml"
)
