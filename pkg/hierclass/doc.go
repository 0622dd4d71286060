// Package hierclass classifies short product descriptions into a two-level
// category → family hierarchy using a bundle published by the hierclass CLI.
//
// Quick start:
//
//	c, err := hierclass.Open(
//	    hierclass.WithStoreDir("models/hierclass"),
//	    hierclass.WithModelDir("models/"),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer c.Close()
//
//	res, _ := c.Classify(ctx, []hierclass.Input{{ID: "P1", Text: "cable de cobre 2mm"}})
//	for _, p := range res.Classified {
//	    fmt.Println(p.ID, p.Category, p.Family, p.Confidence)
//	}
//
// Predicted families always belong to the predicted category. Records whose
// confidence is below the threshold land in Result.Unclassified for manual
// review. A Classifier is safe for concurrent use.
package hierclass
