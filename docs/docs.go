// Package docs registers the OpenAPI document served at /swagger/*any.
// Regenerate with `go generate ./cmd/server` after changing handler
// annotations.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/webhooks/{token}/session": {
            "post": {
                "operationId": "sessionWebhook",
                "summary": "Receive a session monitoring callback",
                "tags": ["Webhooks"],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "parameters": [
                    {"type": "string", "name": "token", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.WebhookAck"}},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/webhooks/{token}/archive": {
            "post": {
                "operationId": "archiveWebhook",
                "summary": "Receive an archive status callback",
                "tags": ["Webhooks"],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "parameters": [
                    {"type": "string", "name": "token", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.WebhookAck"}},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/events/{id}/broadcast/reconcile": {
            "post": {
                "operationId": "reconcileEventBroadcast",
                "summary": "Reconcile an event's broadcast with the schedule",
                "tags": ["Broadcasts"],
                "produces": ["application/json"],
                "parameters": [
                    {"type": "string", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.ReconcileResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "502": {"description": "Bad Gateway", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/events/{id}/broadcast/stop": {
            "post": {
                "operationId": "stopEventBroadcast",
                "summary": "Stop every broadcast of an event",
                "tags": ["Broadcasts"],
                "produces": ["application/json"],
                "parameters": [
                    {"type": "string", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.StopResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "502": {"description": "Bad Gateway", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/rooms/{id}/token": {
            "post": {
                "operationId": "issueRoomToken",
                "summary": "Issue a client session token for a room",
                "tags": ["Rooms"],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "parameters": [
                    {"type": "string", "name": "id", "in": "path", "required": true},
                    {"name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handlers.TokenRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK"},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/rooms/{id}/participants/count": {
            "get": {
                "operationId": "roomParticipantCount",
                "summary": "Count participants present in a room",
                "tags": ["Rooms"],
                "produces": ["application/json"],
                "parameters": [
                    {"type": "string", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.ParticipantCountResponse"}}
                }
            }
        },
        "/export-jobs": {
            "get": {
                "operationId": "listExportJobs",
                "summary": "List recording export jobs (paginated)",
                "tags": ["Export jobs"],
                "produces": ["application/json"],
                "parameters": [
                    {"type": "integer", "default": 1, "minimum": 1, "name": "page", "in": "query"},
                    {"type": "integer", "default": 20, "maximum": 100, "minimum": 1, "name": "page_size", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK"},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            },
            "post": {
                "operationId": "enqueueExportJob",
                "summary": "Queue a recording export",
                "tags": ["Export jobs"],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "parameters": [
                    {"name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handlers.EnqueueExportRequest"}}
                ],
                "responses": {
                    "202": {"description": "Accepted"},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        }
    },
    "definitions": {
        "handlers.ErrorResponse": {
            "type": "object",
            "properties": {
                "request_id": {"type": "string"},
                "code": {"type": "string", "example": "not_found"},
                "message": {"type": "string"}
            }
        },
        "handlers.WebhookAck": {
            "type": "object",
            "properties": {
                "ok": {"type": "boolean"},
                "code": {"type": "string"}
            }
        },
        "handlers.ReconcileResponse": {
            "type": "object",
            "properties": {
                "event_id": {"type": "string"},
                "outcome": {"type": "string"}
            }
        },
        "handlers.StopResponse": {
            "type": "object",
            "properties": {
                "event_id": {"type": "string"},
                "stopped": {"type": "integer"}
            }
        },
        "handlers.TokenRequest": {
            "type": "object",
            "required": ["registrant_id"],
            "properties": {
                "registrant_id": {"type": "string"},
                "role": {"type": "string"}
            }
        },
        "handlers.ParticipantCountResponse": {
            "type": "object",
            "properties": {
                "room_id": {"type": "string"},
                "count": {"type": "integer"}
            }
        },
        "handlers.EnqueueExportRequest": {
            "type": "object",
            "required": ["recording_key", "title"],
            "properties": {
                "event_id": {"type": "string"},
                "recording_key": {"type": "string"},
                "captions_key": {"type": "string"},
                "title": {"type": "string"},
                "description": {"type": "string"},
                "folder_id": {"type": "string"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it.
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/api/v1",
	Schemes:          []string{"http", "https"},
	Title:            "Live Presence API",
	Description:      "Presence tracking, broadcast reconciliation and recording export for live sessions.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
