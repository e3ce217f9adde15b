package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Archivio API",
        "description": "Protocol register and physical archive movement engine",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "tags": [
        {"name": "Locations", "description": "Hierarchical storage tree"},
        {"name": "Placements", "description": "Physical placement tracking"},
        {"name": "Protocol", "description": "Inbound/outbound movement register"},
        {"name": "Batches", "description": "Atomic archive operations"},
        {"name": "Exports", "description": "Asynchronous register exports"}
    ],
    "paths": {
        "/health": {
            "get": {
                "summary": "Health check",
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/ready": {
            "get": {
                "summary": "Readiness check",
                "responses": {
                    "200": {"description": "Ready"},
                    "503": {"description": "Degraded"}
                }
            }
        },
        "/locations": {
            "post": {
                "tags": ["Locations"],
                "summary": "Add a storage unit",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateLocationRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/locations/tree": {
            "get": {
                "tags": ["Locations"],
                "summary": "Full location tree",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/locations/allowed-children": {
            "get": {
                "tags": ["Locations"],
                "summary": "Unit types a given type may contain",
                "parameters": [
                    {"name": "type", "in": "query", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/locations/{id}": {
            "get": {
                "tags": ["Locations"],
                "summary": "Get a storage unit",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "patch": {
                "tags": ["Locations"],
                "summary": "Rename, move or archive a storage unit",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/UpdateLocationRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/locations/{id}/children": {
            "get": {
                "tags": ["Locations"],
                "summary": "Direct children of a storage unit",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/placements": {
            "post": {
                "tags": ["Placements"],
                "summary": "Record where a target is stored",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/AssignPlacementRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/placements/current": {
            "get": {
                "tags": ["Placements"],
                "summary": "Active placement of a target",
                "parameters": [
                    {"name": "targetKind", "in": "query", "required": true, "type": "string"},
                    {"name": "targetId", "in": "query", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/placements/history": {
            "get": {
                "tags": ["Placements"],
                "summary": "Placement history of a target",
                "parameters": [
                    {"name": "targetKind", "in": "query", "required": true, "type": "string"},
                    {"name": "targetId", "in": "query", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/placements/last": {
            "delete": {
                "tags": ["Placements"],
                "summary": "Undo the most recent placement",
                "parameters": [
                    {"name": "targetKind", "in": "query", "required": true, "type": "string"},
                    {"name": "targetId", "in": "query", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/protocol/outbound": {
            "post": {
                "tags": ["Protocol"],
                "summary": "Register an outbound movement",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/RegisterMovementRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/protocol/inbound": {
            "post": {
                "tags": ["Protocol"],
                "summary": "Register an inbound movement",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/RegisterMovementRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/protocol": {
            "get": {
                "tags": ["Protocol"],
                "summary": "List protocol entries",
                "parameters": [
                    {"name": "subjectId", "in": "query", "type": "string"},
                    {"name": "year", "in": "query", "type": "integer"},
                    {"name": "direction", "in": "query", "type": "string"},
                    {"name": "closed", "in": "query", "type": "boolean"},
                    {"name": "limit", "in": "query", "type": "integer"},
                    {"name": "offset", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/protocol/{id}": {
            "get": {
                "tags": ["Protocol"],
                "summary": "Get a protocol entry",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/protocol/exports": {
            "post": {
                "tags": ["Exports"],
                "summary": "Queue a register export",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateExportRequest"}}
                ],
                "responses": {
                    "202": {"description": "Accepted", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/protocol/exports/{id}": {
            "get": {
                "tags": ["Exports"],
                "summary": "Export job status",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/protocol/exports/download/{token}": {
            "get": {
                "tags": ["Exports"],
                "summary": "Download a finished export",
                "produces": ["application/octet-stream"],
                "parameters": [
                    {"name": "token", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/batches": {
            "get": {
                "tags": ["Batches"],
                "summary": "List archive operations",
                "parameters": [
                    {"name": "kind", "in": "query", "type": "string"},
                    {"name": "processed", "in": "query", "type": "boolean"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Batches"],
                "summary": "Create an archive operation",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateBatchRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/batches/{id}": {
            "get": {
                "tags": ["Batches"],
                "summary": "Get an archive operation",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/batches/{id}/process": {
            "post": {
                "tags": ["Batches"],
                "summary": "Process an archive operation atomically",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/batches/{id}/proof": {
            "post": {
                "tags": ["Batches"],
                "summary": "Attach a scanned proof",
                "consumes": ["multipart/form-data"],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "file", "in": "formData", "required": true, "type": "file"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/batches/{id}/proof/url": {
            "get": {
                "tags": ["Batches"],
                "summary": "Signed download token for the proof",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/batches/{id}/proof/download": {
            "get": {
                "tags": ["Batches"],
                "summary": "Download the proof with a signed token",
                "produces": ["application/octet-stream"],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "token", "in": "query", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        }
    },
    "definitions": {
        "CreateLocationRequest": {
            "type": "object",
            "properties": {
                "parentId": {"type": "string"},
                "type": {"type": "string"},
                "prefix": {"type": "string"},
                "name": {"type": "string"}
            },
            "required": ["type", "prefix"]
        },
        "UpdateLocationRequest": {
            "type": "object",
            "properties": {
                "parentId": {"type": "string"},
                "moveToRoot": {"type": "boolean"},
                "name": {"type": "string"},
                "prefix": {"type": "string"},
                "active": {"type": "boolean"}
            }
        },
        "AssignPlacementRequest": {
            "type": "object",
            "properties": {
                "targetKind": {"type": "string"},
                "targetId": {"type": "string"},
                "locationId": {"type": "string"},
                "note": {"type": "string"}
            },
            "required": ["targetKind", "targetId", "locationId"]
        },
        "RegisterMovementRequest": {
            "type": "object",
            "properties": {
                "targetKind": {"type": "string"},
                "targetId": {"type": "string"},
                "recordedAt": {"type": "string"},
                "counterpart": {"type": "string"},
                "counterpartId": {"type": "string"},
                "locationId": {"type": "string"},
                "expectedReturn": {"type": "string"},
                "reason": {"type": "string"},
                "notes": {"type": "string"}
            },
            "required": ["targetKind", "targetId"]
        },
        "CreateBatchRequest": {
            "type": "object",
            "properties": {
                "kind": {"type": "string"},
                "occurredAt": {"type": "string"},
                "counterpart": {"type": "string"},
                "note": {"type": "string"},
                "lines": {
                    "type": "array",
                    "items": {"$ref": "#/definitions/BatchLineRequest"}
                }
            },
            "required": ["kind", "lines"]
        },
        "BatchLineRequest": {
            "type": "object",
            "properties": {
                "targetKind": {"type": "string"},
                "targetId": {"type": "string"},
                "protocolEntryId": {"type": "string"},
                "sourceLocationId": {"type": "string"},
                "destLocationId": {"type": "string"},
                "nextStatus": {"type": "string"},
                "note": {"type": "string"}
            },
            "required": ["targetKind", "targetId"]
        },
        "CreateExportRequest": {
            "type": "object",
            "properties": {
                "subjectId": {"type": "string"},
                "year": {"type": "integer"},
                "direction": {"type": "string"},
                "format": {"type": "string", "enum": ["csv", "pdf"]}
            },
            "required": ["format"]
        },
        "Pagination": {
            "type": "object",
            "properties": {
                "page": {"type": "integer"},
                "page_size": {"type": "integer"},
                "total_count": {"type": "integer"}
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "pagination": {"$ref": "#/definitions/Pagination"},
                "meta": {"type": "object"}
            }
        }
    }
}`

type swaggerDoc struct{}

// ReadDoc returns the Swagger document.
func (s *swaggerDoc) ReadDoc() string {
	return docTemplate
}

func init() {
	swag.Register(swag.Name, &swaggerDoc{})
}
