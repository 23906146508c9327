package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Roster Gateway API",
        "description": "Attendance roster sessions and lesson media exports driven by a chat adapter",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http",
        "https"
    ],
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "tags": [
        {"name": "Sessions", "description": "Button presses and form replies"},
        {"name": "Lessons", "description": "Roster priming, pages and sheets"},
        {"name": "Media", "description": "Lesson media index"},
        {"name": "Exports", "description": "Media export jobs and downloads"},
        {"name": "System", "description": "Operational endpoints"}
    ],
    "paths": {
        "/callbacks": {
            "post": {
                "tags": ["Sessions"],
                "summary": "Dispatch an inline button press",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"in": "body", "name": "payload", "required": true, "schema": {"$ref": "#/definitions/CallbackRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Lesson or entry not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "429": {"description": "Too many presses", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/sessions/text": {
            "post": {
                "tags": ["Sessions"],
                "summary": "Reply to the pending add-student form",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"in": "body", "name": "payload", "required": true, "schema": {"$ref": "#/definitions/TextRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "No pending form", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/lessons": {
            "post": {
                "tags": ["Lessons"],
                "summary": "Seed the roster of a lesson",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"in": "body", "name": "payload", "required": true, "schema": {"$ref": "#/definitions/PrimeLessonRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/lessons/{ref}/render": {
            "get": {
                "tags": ["Lessons"],
                "summary": "Render a roster page",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"in": "path", "name": "ref", "required": true, "type": "string"},
                    {"in": "query", "name": "mode", "type": "string", "enum": ["first", "correction"]},
                    {"in": "query", "name": "page", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Lesson not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/lessons/{ref}/sheet": {
            "get": {
                "tags": ["Lessons"],
                "summary": "Download the roster sheet",
                "security": [{"BearerAuth": []}],
                "produces": ["text/csv", "application/pdf"],
                "parameters": [
                    {"in": "path", "name": "ref", "required": true, "type": "string"},
                    {"in": "query", "name": "format", "type": "string", "enum": ["csv", "pdf"]}
                ],
                "responses": {
                    "200": {"description": "File"}
                }
            }
        },
        "/media": {
            "post": {
                "tags": ["Media"],
                "summary": "Record an uploaded lesson file",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"in": "body", "name": "payload", "required": true, "schema": {"$ref": "#/definitions/RecordMediaRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/exports": {
            "post": {
                "tags": ["Exports"],
                "summary": "Announce a lesson's files for export",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"in": "body", "name": "payload", "required": true, "schema": {"$ref": "#/definitions/CreateExportRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/exports/download": {
            "get": {
                "tags": ["Exports"],
                "summary": "Download a stored archive part via signed token",
                "produces": ["application/zip"],
                "parameters": [
                    {"in": "query", "name": "token", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "Archive"},
                    "401": {"description": "Invalid token"},
                    "403": {"description": "Link expired"}
                }
            }
        },
        "/system/metrics": {
            "get": {
                "tags": ["System"],
                "summary": "Service counters",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        }
    },
    "definitions": {
        "Button": {
            "type": "object",
            "properties": {
                "text": {"type": "string"},
                "callback_data": {"type": "string"}
            }
        },
        "Keyboard": {
            "type": "array",
            "items": {"type": "array", "items": {"$ref": "#/definitions/Button"}}
        },
        "CallbackRequest": {
            "type": "object",
            "required": ["data"],
            "properties": {
                "data": {"type": "string"},
                "chat_id": {"type": "integer"},
                "message_id": {"type": "integer"},
                "keyboard": {"$ref": "#/definitions/Keyboard"}
            }
        },
        "TextRequest": {
            "type": "object",
            "required": ["text"],
            "properties": {
                "chat_id": {"type": "integer"},
                "text": {"type": "string"}
            }
        },
        "PrimeStudent": {
            "type": "object",
            "required": ["name"],
            "properties": {
                "name": {"type": "string"},
                "source_row_id": {"type": "string"},
                "source_column": {"type": "string"}
            }
        },
        "PrimeLessonRequest": {
            "type": "object",
            "required": ["location", "group", "time_slot"],
            "properties": {
                "location": {"type": "string"},
                "group": {"type": "string"},
                "time_slot": {"type": "string"},
                "students": {"type": "array", "items": {"$ref": "#/definitions/PrimeStudent"}}
            }
        },
        "RecordMediaRequest": {
            "type": "object",
            "required": ["location", "group", "lesson_date", "time_slot", "handle", "kind"],
            "properties": {
                "location": {"type": "string"},
                "group": {"type": "string"},
                "lesson_date": {"type": "string"},
                "time_slot": {"type": "string"},
                "handle": {"type": "string"},
                "content_hash": {"type": "string"},
                "size_bytes": {"type": "integer"},
                "kind": {"type": "string", "enum": ["photo", "video"]}
            }
        },
        "CreateExportRequest": {
            "type": "object",
            "required": ["location", "group", "time_slot", "lesson_date"],
            "properties": {
                "location": {"type": "string"},
                "group": {"type": "string"},
                "time_slot": {"type": "string"},
                "lesson_date": {"type": "string"},
                "module": {"type": "string"},
                "theme": {"type": "string"}
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
