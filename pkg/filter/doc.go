// Package filter parses query-string filter expressions into typed predicates.
//
// A filter parameter has the shape key[operator]value:
//
//	Parameter          | Predicate
//	-------------------|------------------------------------------
//	?name              | name IS NOT NULL
//	?!name             | name IS NULL
//	?name=!            | name IS NULL
//	?status=active     | status = 'active'
//	?status=!active    | status <> 'active'
//	?status!=active    | status <> 'active'
//	?id=1,2,3          | id IN (1, 2, 3)
//	?id!=1,2           | id NOT IN (1, 2)
//	?age>=18           | age >= 18
//	?name:ilike=%jo%   | name ILIKE '%jo%'
//	?price:between=1,5 | price BETWEEN 1 AND 5
//	?q=term            | free-text search across declared fields
//
// Operand tokens are coerced into typed values: /re/i is a regex, "x" or 'x'
// a string, true/false a boolean, ISO-8601 a date (a bare 4-digit token stays
// a number), anything numeric a number, everything else a string.
package filter
