package odl

// retailODL is the reference retail ontology used across the test suite:
// four objects, three relationships, two metrics, two dimensions.
const retailODL = `{
  "version": "1.0",
  "name": "retail",
  "description": "Retail analytics ontology",
  "objects": [
    {
      "name": "Customer",
      "identifiers": ["customer_id"],
      "properties": [
        {"name": "customer_id", "type": "string", "nullable": false, "required": true},
        {"name": "email", "type": "string"},
        {"name": "full_name", "type": "string"},
        {"name": "created_at", "type": "timestamp"}
      ]
    },
    {
      "name": "Order",
      "identifiers": ["order_id"],
      "properties": [
        {"name": "order_id", "type": "string", "nullable": false, "required": true},
        {"name": "customer_id", "type": "string", "nullable": false},
        {"name": "order_total", "type": "decimal"},
        {"name": "placed_at", "type": "timestamp"}
      ]
    },
    {
      "name": "Product",
      "identifiers": ["product_id"],
      "properties": [
        {"name": "product_id", "type": "string", "nullable": false, "required": true},
        {"name": "title", "type": "string"},
        {"name": "unit_price", "type": "decimal"}
      ]
    },
    {
      "name": "OrderItem",
      "identifiers": ["order_item_id"],
      "properties": [
        {"name": "order_item_id", "type": "string", "nullable": false, "required": true},
        {"name": "order_id", "type": "string", "nullable": false},
        {"name": "product_id", "type": "string", "nullable": false},
        {"name": "quantity", "type": "integer"},
        {"name": "line_total", "type": "decimal"}
      ]
    }
  ],
  "relationships": [
    {
      "name": "placed_by",
      "from": "Order",
      "to": "Customer",
      "joinKeys": [["customer_id", "customer_id"]],
      "cardinality": "many_to_one"
    },
    {
      "name": "contains",
      "from": "OrderItem",
      "to": "Order",
      "joinKeys": [["order_id", "order_id"]],
      "cardinality": "many_to_one"
    },
    {
      "name": "includes",
      "from": "OrderItem",
      "to": "Product",
      "joinKeys": [["product_id", "product_id"]],
      "cardinality": "many_to_one"
    }
  ],
  "metrics": [
    {
      "name": "TotalRevenue",
      "expression": "SUM(order_total)",
      "grain": ["Order"],
      "type": "sum",
      "format": "$#,##0.00"
    },
    {
      "name": "OrderCount",
      "expression": "COUNT(order_id)",
      "grain": ["Order"],
      "type": "count"
    }
  ],
  "dimensions": [
    {"name": "customer_email", "sourceProperty": "Customer.email"},
    {"name": "product_title", "sourceProperty": "Product.title"}
  ],
  "targetMapping": {
    "database": "RETAIL_DB",
    "schema": "PUBLIC",
    "tableMappings": {
      "Customer": "customers",
      "Order": "orders",
      "Product": "products",
      "OrderItem": "order_items"
    }
  }
}`

func mustParseRetail() *IR {
	ir, err := ParseAndValidate([]byte(retailODL))
	if err != nil {
		panic(err)
	}
	return ir
}
