/*
Copyright 2018 Gravitational, Inc.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package loadgen

import (
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"net/url"
)

var (
	adjectives = []string{"Premium", "Compact", "Wireless", "Ergonomic", "Portable", "Smart", "Classic", "Rugged"}
	nouns      = []string{"Laptop", "Keyboard", "Monitor", "Headphones", "Camera", "Speaker", "Tablet", "Router"}
)

// Product is the product payload of create and update requests
type Product struct {
	// Name is the product name
	Name string `json:"name"`
	// Description is the product description
	Description string `json:"description"`
	// Price is the product price
	Price float64 `json:"price"`
	// StockQuantity is the number of items in stock
	StockQuantity int `json:"stockQuantity"`
}

// RandomProduct returns a product with random fields drawn from rng
func RandomProduct(rng *rand.Rand) Product {
	name := fmt.Sprintf("%v %v", adjectives[rng.Intn(len(adjectives))], nouns[rng.Intn(len(nouns))])
	return Product{
		Name:          name,
		Description:   fmt.Sprintf("%v generated by synthetic traffic", name),
		Price:         math.Round((1+rng.Float64()*999)*100) / 100,
		StockQuantity: rng.Intn(501),
	}
}

func encodeProduct(product Product) []byte {
	// Marshaling a Product cannot fail
	data, _ := json.Marshal(product)
	return data
}

func randomSearchPath(rng *rand.Rand) string {
	return productsPath + "/search?name=" + url.QueryEscape(nouns[rng.Intn(len(nouns))])
}

func randomPriceRangePath(rng *rand.Rand) string {
	min := rng.Intn(500)
	max := min + 10 + rng.Intn(500)
	return fmt.Sprintf("%v/price-range?min=%v&max=%v", productsPath, min, max)
}
