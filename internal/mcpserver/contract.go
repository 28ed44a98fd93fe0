package mcpserver

// SkeletonFormatContract describes the skeleton sidecar that LLM consumers
// should produce when annotating a table.
const SkeletonFormatContract = `# Skeletab Skeleton Format Contract

A skeleton describes the semantic structure of one regression table grid.
It is stored next to the grid as ` + "`" + `<paper>_<table>.skeleton.json` + "`" + `.

## Identity

Tables are named ` + "`" + `<paper_id>_<table|figure><N>[_<panel>]` + "`" + `, for example
` + "`" + `smith2020_table2` + "`" + ` or ` + "`" + `smith2020_table2_A` + "`" + `. ` + "`" + `paper_id` + "`" + `, ` + "`" + `table_id` + "`" + `,
` + "`" + `grid_file` + "`" + ` and ` + "`" + `last_modified` + "`" + ` are set by the server on save; values sent by
the client are ignored.

## Structure

` + "```" + `json
{
  "status": "in_progress",
  "bracket_type_default": "std_err",
  "bracket_type_overrides": {"3": "t_stat"},
  "y_columns": [
    {"col": 1, "depvar_label": "Log wage", "depvar_data_name": "lwage", "note": null}
  ],
  "x_rows": [
    {"row": 1, "display_label": "Treated", "data_var_name": "treat", "role": "key", "note": null}
  ],
  "fe_rows": [
    {"row": 9, "label": "Year FE", "data_var_name": "year", "note": null}
  ],
  "obs_rows": [
    {"row": 11, "label": "Observations", "note": null}
  ],
  "notes": {"rows": {}, "cols": {}, "cells": {"1,1": "clustered by firm"}}
}
` + "```" + `

## Rules

1. **row** is the row id found in the first grid column (1-based). When that
   cell is not a number, use the 1-based position of the data row.
   **col** is the position of the column in the header; column 0 holds the
   row ids and is never a y column.
2. **status** is ` + "`" + `not_started` + "`" + `, ` + "`" + `in_progress` + "`" + ` or ` + "`" + `completed` + "`" + `. Set ` + "`" + `completed` + "`" + ` only
   when every coefficient row and outcome column is labelled.
3. **bracket_type_default** names what the bracketed numbers under each
   coefficient are: ` + "`" + `std_err` + "`" + `, ` + "`" + `t_stat` + "`" + `, ` + "`" + `p_value` + "`" + ` or ` + "`" + `unknown` + "`" + `. Overrides
   use the same values.
4. **role** on x_rows is ` + "`" + `key` + "`" + ` for the coefficients of interest, otherwise ` + "`" + `control` + "`" + `,
   ` + "`" + `interaction` + "`" + ` or ` + "`" + `other` + "`" + `. It defaults to ` + "`" + `key` + "`" + `.
5. **data_var_name** values should come from the variable list of the paper
   when a matching name exists. Use null when unknown; never invent names.
6. **notes** keys are free-form strings, conventionally a row id, a column
   position, or ` + "`" + `"<row>,<col>"` + "`" + ` for a cell.
7. Keep numbers, asterisks and brackets in the grid exactly as printed.

## Grid edits

Use ` + "`" + `save_grid` + "`" + ` only to fix transcription errors in the cell text. The header
row and every data row are written back verbatim; the file is rewritten
with CRLF line endings.

## Images

Attach a rendering of the source table with ` + "`" + `upload_image` + "`" + `. Only PNG and
JPEG are accepted. The image is stored next to the grid as
` + "`" + `<paper>_<table>.png` + "`" + ` or ` + "`" + `.jpg` + "`" + `.
`
