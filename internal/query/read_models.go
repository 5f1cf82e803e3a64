package query

import "github.com/example/ec-checkout/internal/readmodel"

type ProductReadModel = readmodel.ProductReadModel
type OrderReadModel = readmodel.OrderReadModel
type OrderStatusReadModel = readmodel.OrderStatusReadModel
type CustomerReadModel = readmodel.CustomerReadModel
