// Package rest exposes registered entity collections as REST resources.
//
// The HTTP verb and the URL shape decide the operation:
//
//	Request                   | Operation
//	--------------------------|------------------------------------------
//	GET    /{collection}      | list
//	POST   /{collection}      | create
//	GET    /{collection}/{id} | retrieve by primary key
//	PUT    /{collection}/{id} | update
//	DELETE /{collection}/{id} | delete, returns the deleted record
//	*      /{collection}/count| count matching records: {"count": N}
//
// Collection segments are normalized (widget-items resolves WidgetItems).
// Any other verb and path combination fails with METHOD_NOT_ALLOWED.
//
// Every query parameter not listed below is a filter. Filters are ANDed;
// a parameter that does not parse is ignored.
//
//	Parameter            | Description
//	---------------------|------------------------------------------------
//	?status=active       | equality
//	?status=!active      | inequality, also ?status!=active
//	?id=1,2,3            | set membership; ?id!=1,2 or ?id=!1,2 negates
//	?deletedAt           | not null; ?!deletedAt or ?deletedAt=! is null
//	?price>=10           | comparison: >, >=, <, <=
//	?name:ilike=%25ab%25 | named comparator: like, ilike, not like,
//	                     | not ilike, between, not between, in, not in
//	?name=/^ab/i         | regular expression
//	?q=term              | case-insensitive search over the search fields
//	?with=tags,parts     | eager-load relations
//	?sort=-createdAt,name| ordering; "order" is an alias, field.desc works
//	?page=2&count=10     | 1-based page; size from count or limit, default 20
//
// Values are typed: "quoted" strings, true/false, ISO-8601 dates (never a
// bare 4-digit token) and numbers.
//
// Writes take a JSON object. When a collection declares fillable fields,
// other fields are dropped. Cascade fields carry relation payloads that are
// written in the same transaction as the record: a many-to-many payload is
// a list of ids (or objects with ids) the association is synced to; a
// one-to-many payload is a list of objects, each created, or updated when
// it carries an existing key.
//
// HTTP headers:
//
//	Header                  | Description
//	------------------------|------------------------------------------------
//	Prefer: return=minimal  | answer create, update and delete with 204
//	Prefer: count=exact     | add Content-Range with the total to a list
//
// Errors are returned as {"code": 404, "kind": "NOT_FOUND", "message": "..."}.
package rest
